package handlers

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/datachat/datachat/internal/ai"
	"github.com/datachat/datachat/internal/analytics"
	"github.com/datachat/datachat/internal/chat"
	"github.com/datachat/datachat/internal/config"
	"github.com/datachat/datachat/internal/email"
	"github.com/datachat/datachat/internal/fewshot"
	"github.com/datachat/datachat/internal/geo"
	"github.com/datachat/datachat/internal/render"
	"github.com/datachat/datachat/internal/store/rabbitmq"
	"github.com/datachat/datachat/internal/store/redisstore"
	"github.com/datachat/datachat/internal/synthesis"
)

type Handler struct {
	DB      *gorm.DB
	Cfg     config.Config
	Redis   *redisstore.Store
	Mailer  *email.Sender
	Rabbit  *rabbitmq.Publisher
	ChatSvc *chat.Service

	Examples *fewshot.Store
}

// NewProvider builds the chat provider selected by AI_PROVIDER through the
// registry, so alternative backends register without touching call sites.
func NewProvider(cfg config.Config) (ai.Provider, error) {
	reg := ai.NewRegistry()
	reg.Register("openai", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenAIModel
		}
		return ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, m), nil
	})
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})
	return reg.Get(context.Background(), cfg.AIProvider, "")
}

// NewChatService wires the full pipeline: provider, embedder, few-shot
// store, synthesizer, renderer and the read-only analytical datasource.
// Shared by the HTTP server and the job worker.
func NewChatService(db *gorm.DB, cfg config.Config) (*chat.Service, *fewshot.Store, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, nil, err
	}

	// Embeddings always come from the OpenAI-compatible endpoint, even when
	// chat goes through Ollama; the vectors stay in one model space.
	embedder := ai.NewOpenAIEmbedder(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIEmbedModel)
	examples := fewshot.NewStore(db, embedder, cfg.FewshotTopKGlobal, cfg.FewshotTopKUser, cfg.FewshotMaxDistance)

	schema, err := analytics.LoadSchemaDescription(cfg.SchemaDescriptionFile)
	if err != nil {
		return nil, nil, err
	}

	analyticsDB, err := analytics.Connect(cfg.AnalyticsDBDSN)
	if err != nil {
		return nil, nil, err
	}

	synth := synthesis.New(provider, examples, schema, cfg.MaxCompletionTokens)
	renderer := render.NewRenderer(provider, geo.NewNominatimClient(cfg.GeocoderBaseURL), cfg.TableRowLimit, cfg.MaxCompletionTokens)

	svc := chat.NewService(chat.NewRepo(db), synth, renderer, analyticsDB, examples, cfg.ChatContextWindowSize)
	return svc, examples, nil
}

func NewHandler(db *gorm.DB, cfg config.Config, rds *redisstore.Store) *Handler {
	svc, examples, err := NewChatService(db, cfg)
	if err != nil {
		log.Fatalf("wire chat service: %v", err)
	}

	rabbit, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}

	return &Handler{
		DB:    db,
		Cfg:   cfg,
		Redis: rds,
		Mailer: email.NewSender(email.SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.SMTPFrom,
		}),
		Rabbit:   rabbit,
		ChatSvc:  svc,
		Examples: examples,
	}
}
