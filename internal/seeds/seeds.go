package seeds

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"fuzzshim/config"
	"fuzzshim/internal/types"
	"fuzzshim/internal/utils"
	"fuzzshim/pkg/database"
	"fuzzshim/pkg/mq"
)

const SeedQueueName = "seed_events"

// Manager fans in new corpus entries from running engines. Each seed is
// copied into the local seed store and into the campaign corpus directory,
// recorded in the database when one is configured, and announced on the
// seed queue when a broker is configured.
type Manager struct {
	rabbitMQ mq.RabbitMQ
	db       *gorm.DB
	logger   *zap.Logger

	seedFolder string
	seedChan   chan types.SeedMessage
	seedChanWg sync.WaitGroup
	done       chan struct{}
}

type ManagerParams struct {
	fx.In

	RabbitMQ mq.RabbitMQ `optional:"true"`
	DB       *gorm.DB    `optional:"true"`
	Logger   *zap.Logger
	Config   *config.AppConfig
	Lc       fx.Lifecycle
}

func NewManager(p ManagerParams) *Manager {
	if err := os.MkdirAll(p.Config.SeedStoreDir, 0755); err != nil {
		p.Logger.Fatal("failed to create seed folder", zap.Error(err))
		return nil
	}

	s := &Manager{
		rabbitMQ:   p.RabbitMQ,
		db:         p.DB,
		logger:     p.Logger,
		seedFolder: p.Config.SeedStoreDir,
		seedChan:   make(chan types.SeedMessage, 1024),
		done:       make(chan struct{}),
	}

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.logger.Debug("starting seed manager")
			if s.rabbitMQ != nil {
				if err := s.declareSeedQueue(); err != nil {
					s.logger.Fatal("failed to declare seed queue", zap.Error(err))
					return err
				}
			}
			go s.start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.logger.Debug("stopping seed manager")
			s.seedChanWg.Wait() // wait until all registered channels are closed
			close(s.seedChan)
			<-s.done
			return nil
		},
	})

	return s
}

// RegisterSeedChan forwards seeds from an engine-owned channel into the
// manager until the channel closes.
func (s *Manager) RegisterSeedChan(rCh <-chan types.SeedMessage) {
	s.seedChanWg.Add(1)
	go func() {
		defer s.seedChanWg.Done()
		for seed := range rCh {
			s.seedChan <- seed
		}
	}()
	s.logger.Debug("new seed channel registered")
}

func (s *Manager) start() {
	defer close(s.done)
	for seed := range s.seedChan {
		if err := s.processSeed(seed); err != nil {
			s.logger.Error("failed to process seed", zap.Error(err))
		}
	}
}

func (s *Manager) processSeed(msg types.SeedMessage) error {
	store := filepath.Join(s.seedFolder, msg.Run.Target)
	if err := os.MkdirAll(store, 0755); err != nil {
		return err
	}

	storedPath := filepath.Join(store, uuid.New().String())
	if err := utils.CopyFile(msg.SeedFile, storedPath); err != nil {
		return err
	}

	// Sync into the campaign corpus dir the launcher validated; this is
	// what makes the corpus_dir argument the engine's working set.
	corpusPath := filepath.Join(msg.Run.CorpusDir, filepath.Base(storedPath))
	if err := utils.CopyFile(msg.SeedFile, corpusPath); err != nil {
		s.logger.Warn("failed to sync seed into corpus dir",
			zap.String("corpus_dir", msg.Run.CorpusDir), zap.Error(err))
	}

	record := database.NewSeedEntry(msg.Run, storedPath, nil)
	if err := database.AddSeed(context.Background(), s.db, record); err != nil {
		s.logger.Error("failed to record seed", zap.Error(err))
	}

	s.publishSeedEvent(msg, storedPath)
	return nil
}

func (s *Manager) declareSeedQueue() error {
	channel := s.rabbitMQ.GetChannel()
	if channel == nil {
		return nil
	}
	defer channel.Close()

	_, err := channel.QueueDeclare(
		SeedQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	return err
}

func (s *Manager) publishSeedEvent(msg types.SeedMessage, storedPath string) {
	if s.rabbitMQ == nil {
		return
	}
	channel := s.rabbitMQ.GetChannel()
	if channel == nil {
		s.logger.Error("failed to get rabbitmq channel for seed event")
		return
	}
	defer channel.Close()

	event := types.SeedEvent{
		RunID:    msg.Run.RunID,
		Target:   msg.Run.Target,
		Engine:   msg.Run.Engine,
		SeedPath: storedPath,
	}
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("failed to marshal seed event", zap.Error(err))
		return
	}

	err = channel.PublishWithContext(context.Background(),
		"",            // exchange
		SeedQueueName, // routing key
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		s.logger.Error("failed to publish seed event", zap.Error(err))
	}
}
