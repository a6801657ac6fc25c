package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/adapter/firebasestorage"
	"github.com/jun/dijitalmektup/internal/adapter/firestore"
	"github.com/jun/dijitalmektup/internal/adapter/googledrive"
	"github.com/jun/dijitalmektup/internal/adapter/memory"
	"github.com/jun/dijitalmektup/internal/adapter/redis"
	"github.com/jun/dijitalmektup/internal/adapter/sqlstore"
	"github.com/jun/dijitalmektup/internal/auth"
	"github.com/jun/dijitalmektup/internal/compose"
	"github.com/jun/dijitalmektup/internal/config"
	"github.com/jun/dijitalmektup/internal/crypto"
	"github.com/jun/dijitalmektup/internal/editor"
	"github.com/jun/dijitalmektup/internal/export"
	"github.com/jun/dijitalmektup/internal/letter"
	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/mq"
	"github.com/jun/dijitalmektup/internal/mq/sqsmq"
	"github.com/jun/dijitalmektup/internal/notify"
	"github.com/jun/dijitalmektup/internal/secret"
	"github.com/jun/dijitalmektup/internal/session"
	"github.com/jun/dijitalmektup/internal/sticker"
	"github.com/jun/dijitalmektup/internal/theme"
)

const devJWTSecret = "default-dev-secret"

// Services is the wired dependency graph shared by every entry point.
type Services struct {
	Config  *config.Config
	Log     *logger.Logger
	Secrets secret.Values

	Auth          *auth.AuthService
	Authenticator *auth.Authenticator

	Letters  *letter.Service
	Composer *compose.Composer
	Themes   *theme.Registry
	Exporter *export.Exporter
	Stickers *sticker.Client

	// Objects holds demo users' images and everything in memory mode; it is
	// served under /objects.
	Objects  *memory.Objects
	Provider adapter.ObjectProvider
	Queue    mq.MessageQueue
	PubSub   adapter.PubSub
	Notifier *notify.Notifier

	closers []func() error
}

// Close releases connections opened by NewServices.
func (s *Services) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewServices builds all services selected by cfg.
func NewServices(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Services, error) {
	s := &Services{Config: cfg, Log: log}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	// DynamoDB backs users, locks and letters unless everything runs in memory.
	var dynamoClient *dynamodb.Client
	if cfg.Storage.Letters != "memory" {
		dynamoClient = dynamodb.NewFromConfig(awsCfg)
	}

	// ---------- Secrets ----------
	var resolver secret.Resolver
	if cfg.DevMode {
		resolver = secret.NewEnvResolver()
		log.Debug("using EnvResolver")
	} else {
		resolver = secret.NewSSMResolver(ssm.NewFromConfig(awsCfg))
	}
	s.Secrets, err = secret.Load(ctx, secret.NewCachingResolver(resolver), cfg.Secrets)
	if err != nil {
		if !cfg.DevMode {
			return nil, err
		}
		log.Warn("JWT secret not set, using the development secret")
		s.Secrets.JWTSecret = devJWTSecret
	}

	// ---------- Encryption ----------
	var enc crypto.Encryptor
	if cfg.DevMode {
		enc = crypto.NewMockEncryptor()
	} else {
		enc = crypto.NewKMSService(kms.NewFromConfig(awsCfg), cfg.KMSKeyID)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: s.Secrets.GoogleClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
		Scopes: []string{
			"openid",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
			"https://www.googleapis.com/auth/drive.file",
		},
		Endpoint: google.Endpoint,
	}
	s.Auth = auth.NewAuthService(oauthCfg, dynamoClient, cfg.Tables.UserTokens, enc)

	// ---------- Firebase ----------
	var fbApp *firebase.App
	if needsFirebase(cfg) {
		var opts []option.ClientOption
		if cfg.Firebase.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
		}
		fbApp, err = firebase.NewApp(ctx, &firebase.Config{
			ProjectID:     cfg.Firebase.ProjectID,
			StorageBucket: cfg.Firebase.Bucket,
		}, opts...)
		if err != nil {
			return nil, fmt.Errorf("initializing firebase: %w", err)
		}
	}

	var verifier auth.TokenVerifier
	if cfg.Firebase.VerifyIDTokens && fbApp != nil {
		client, err := fbApp.Auth(ctx)
		if err != nil {
			return nil, fmt.Errorf("initializing firebase auth: %w", err)
		}
		verifier = client
	}
	s.Authenticator = auth.NewAuthenticator(s.Secrets.JWTSecret, verifier)

	// ---------- Letter store ----------
	var store adapter.LetterStore
	switch cfg.Storage.Letters {
	case "memory":
		store = memory.NewLetterStore(nil, "")
	case "dynamodb":
		store = memory.NewLetterStore(dynamoClient, cfg.Tables.Letters)
	case "firestore":
		var client *gfirestore.Client
		if client, err = fbApp.Firestore(ctx); err != nil {
			return nil, fmt.Errorf("initializing firestore: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		store = firestore.NewLetterStore(client)
	case "sql":
		sqlStore, err := sqlstore.Open(ctx, cfg.Storage.SQLDriver, cfg.Storage.SQLDSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, sqlStore.Close)
		store = sqlStore
	default:
		return nil, fmt.Errorf("unknown letter store %q", cfg.Storage.Letters)
	}

	// ---------- Objects ----------
	s.Objects = memory.NewObjects(strings.TrimSuffix(cfg.PublicURL, "/"))
	demo := adapter.StaticProvider{Store: s.Objects}
	switch cfg.Storage.Objects {
	case "memory":
		s.Provider = demo
	case "firebase":
		bucket, err := firebasestorage.New(ctx, fbApp, cfg.Firebase.Bucket)
		if err != nil {
			return nil, err
		}
		s.Provider = &adapter.HybridProvider{Primary: adapter.StaticProvider{Store: bucket}, Demo: demo}
	case "drive":
		s.Provider = &adapter.HybridProvider{Primary: googledrive.NewProvider(s.Auth), Demo: demo}
	default:
		return nil, fmt.Errorf("unknown object store %q", cfg.Storage.Objects)
	}

	// ---------- KV, pub/sub and locks ----------
	var kv adapter.KVStore
	var locker session.Locker
	if cfg.Redis.Addr != "" {
		rs, err := redis.NewStore(ctx, cfg.DevMode, cfg.Redis.Addr, log)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, rs.Close)
		kv, s.PubSub, locker = rs, rs, rs
	} else {
		kv, s.PubSub = memory.NewKV(), memory.NewPubSub()
		if dynamoClient != nil {
			locker = session.NewLockManager(dynamoClient, cfg.Tables.Locks)
		} else {
			locker = session.NewMemoryLocker()
		}
	}

	// ---------- Cleanup queue ----------
	if cfg.Queue.CleanupQueue != "" {
		if s.Queue, err = sqsmq.NewSQSMessageQueue(ctx, cfg.DevMode, cfg.Queue.Endpoint, cfg.Queue.CleanupQueue); err != nil {
			return nil, err
		}
	} else {
		s.Queue = memory.NewQueue(256, 5*time.Second)
	}

	httpClient := &http.Client{Timeout: 15 * time.Second}

	s.Notifier = notify.NewNotifier(s.PubSub, log)
	s.Themes = theme.NewRegistry(kv, locker, log)
	s.Letters = letter.NewService(store, s.Provider,
		letter.WithThemes(s.Themes),
		letter.WithCleanupQueue(s.Queue),
		letter.WithNotifier(s.Notifier),
		letter.WithLogger(log),
	)

	assets := editor.NewHTTPAssetLoader(httpClient)
	feedback := func(uid string) *editor.Feedback {
		return editor.NewFeedback(assets, s.Notifier.Stage(uid), log.With("user", uid))
	}
	s.Composer = compose.NewComposer(kv, s.Letters, locker, feedback, log)

	// Built-in papers are frontend assets; uploaded ones carry absolute URLs.
	s.Exporter = export.NewExporter(export.NewHTTPLoader(httpClient, cfg.FrontendURL), log)
	s.Stickers = sticker.NewClient(s.Secrets.GiphyAPIKey,
		sticker.WithHTTPClient(httpClient),
		sticker.WithCache(kv),
		sticker.WithLogger(log),
	)

	log.WithFields(map[string]any{
		"letters": cfg.Storage.Letters,
		"objects": cfg.Storage.Objects,
		"redis":   cfg.Redis.Addr != "",
		"sqs":     cfg.Queue.CleanupQueue != "",
	}).Info("services initialized")

	ok = true
	return s, nil
}

func needsFirebase(cfg *config.Config) bool {
	return cfg.Storage.Letters == "firestore" || cfg.Storage.Objects == "firebase" || cfg.Firebase.VerifyIDTokens
}
