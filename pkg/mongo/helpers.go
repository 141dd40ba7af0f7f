package mongo

import "context"

var MongoTestConf = &Config{
	Host:   "localhost",
	Port:   "27018",
	DBName: "moderation_test",
}

// StorageConnect is a helper function that establishes a connection to the predefined test Mongo instance.
// It returns a connected Storage object or an error if connection fails.
func StorageConnect() (*Storage, error) {
	db, err := New(MongoTestConf)
	if err != nil {
		return nil, ErrConnectDB
	}

	if err := db.Ping(); err != nil {
		return nil, ErrDBNotResponding
	}

	return db, nil
}

// RestoreDB drops the comments and messages collections to reset the database state.
// WARNING: Use only in tests to avoid data loss.
func RestoreDB(db *Storage) error {
	for _, name := range []string{"comments", "messages"} {
		coll := db.client.Database(db.dbName).Collection(name)
		if err := coll.Drop(context.Background()); err != nil {
			return err
		}
	}
	return nil
}
