package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"moderation/pkg/api"
	"moderation/pkg/captcha"
	"moderation/pkg/moderation"
	"moderation/pkg/mongo"
)

type Config struct {
	ServiceName  string `toml:"serviceName"`
	DenylistPath string `toml:"denylistPath"`

	Similarity      string  `toml:"similarity"`
	ReviewThreshold float64 `toml:"reviewThreshold"`
	RejectThreshold float64 `toml:"rejectThreshold"`

	HTTPAddr   string `toml:"httpAddr"`
	LogLevel   string `toml:"logLevel"`
	KafkaAddr  string `toml:"kafkaAddr"`
	KafkaTopic string `toml:"kafkaTopic"`
	KafkaBatch int    `toml:"kafkaBatch"`

	RateLimitMax       int64 `toml:"rateLimitMax"`
	RateLimitWindowMin int   `toml:"rateLimitWindowMin"`
}

func main() {
	var (
		configPath   string
		denylistPath string
		httpAddr     string
		logLevel     string
		kafkaAddr    string
		kafkaTopic   string
		kafkaBatch   int
	)

	flag.StringVar(&configPath, "servconf", "cmd/server/config.toml", "Path to TOML config file")
	flag.StringVar(&denylistPath, "denylist", "", "Path to denylist JSON file")
	flag.StringVar(&httpAddr, "http", "", "HTTP server address in the form 'host:port'.")
	flag.StringVar(&logLevel, "log", "", "Log level: debug, info, warn, error.")
	flag.StringVar(&kafkaAddr, "kafka", "", "Kafka server address in the form 'host:port'.")
	flag.StringVar(&kafkaTopic, "topic", "", "Kafka topic.")
	flag.IntVar(&kafkaBatch, "batch", 0, "Kafka batch size.")
	flag.Parse()

	var cfg Config
	if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
		log.Fatalf("[server] failed to load config file %s: %v", configPath, err)
	}

	// Override config with flags if set
	if denylistPath != "" {
		cfg.DenylistPath = denylistPath
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if kafkaAddr != "" {
		cfg.KafkaAddr = kafkaAddr
	}
	if kafkaTopic != "" {
		cfg.KafkaTopic = kafkaTopic
	}
	if kafkaBatch != 0 {
		cfg.KafkaBatch = kafkaBatch
	}

	if !strings.Contains(cfg.HTTPAddr, ":") {
		log.Warn("[server] use ':' before port number, e.g. ':8080'")
	}

	switch cfg.LogLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	}

	detector := moderation.NewDetector(moderation.SimilarityByName(cfg.Similarity), cfg.ReviewThreshold)
	if err := detector.LoadFromJSON(cfg.DenylistPath); err != nil {
		log.Fatalf("[server] failed to load denylist file %s: %v", cfg.DenylistPath, err)
	}

	policy, err := moderation.NewPolicy(cfg.ReviewThreshold, cfg.RejectThreshold)
	if err != nil {
		log.Fatalf("[server] invalid moderation thresholds: %v", err)
	}

	dbConf, err := mongo.NewConfig()
	if err != nil {
		log.Fatalf("[server] failed to read Mongo config: %v", err)
	}
	db, err := mongo.New(dbConf)
	if err != nil {
		log.Fatalf("[server] failed to initialize storage instance, DB connection not established: %v", err)
	}

	var kafkaWriter *kafka.Writer
	if cfg.KafkaAddr != "" && cfg.KafkaTopic != "" {
		kafkaWriter = &kafka.Writer{
			Addr:      kafka.TCP(cfg.KafkaAddr),
			Topic:     cfg.KafkaTopic,
			BatchSize: cfg.KafkaBatch,
		}
		if err := createTopic(kafkaWriter.Addr.String(), kafkaWriter.Topic); err != nil {
			log.Warnf("[server] failed to create Kafka topic: %v", err)
		}
	} else {
		log.Warn("[server] kafka was not configured, logs will not be sent to Kafka")
	}

	var verifier api.TokenVerifier
	if secret := os.Getenv("RECAPTCHA_SECRET"); secret != "" {
		verifier = captcha.New(secret)
	} else {
		log.Warn("[server] RECAPTCHA_SECRET not set, captcha verification disabled")
	}

	apiCfg := api.Config{
		ServiceName:     cfg.ServiceName,
		Verifier:        verifier,
		KafkaWriter:     kafkaWriter,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: time.Duration(cfg.RateLimitWindowMin) * time.Minute,
	}
	api := api.New(apiCfg, db, detector, policy)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Infof("[server] starting on port %v", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[server] failed to start: %v", err)
			return
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("[server] HTTP server shutdown error: %v", err)
	} else {
		log.Info("[server] HTTP server shut down gracefully")
	}

	db.Close(shutdownCtx)
	log.Info("[server] disconnected from DB")
}

func createTopic(broker, topic string) error {
	conn, err := kafka.DialContext(context.Background(), "tcp", broker)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
}
