package main

import (
	"context"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/velora-labs/conversa/channels"
	"github.com/velora-labs/conversa/channels/channelsinfra"
	"github.com/velora-labs/conversa/channels/httpchannel"
	"github.com/velora-labs/conversa/engine"
	"github.com/velora-labs/conversa/engine/adapters"
	"github.com/velora-labs/conversa/engine/engineapi"
	"github.com/velora-labs/conversa/engine/engineinfra"
	"github.com/velora-labs/conversa/engine/enginesrv"
	"github.com/velora-labs/conversa/engine/executor"
	"github.com/velora-labs/conversa/engine/inactivity"
	"github.com/velora-labs/conversa/engine/nodeexec"
	"github.com/velora-labs/conversa/engine/validator"
	"github.com/velora-labs/conversa/iam/tenant"
	"github.com/velora-labs/conversa/iam/tenant/tenantinfra"
	"github.com/velora-labs/conversa/iam/tenant/tenantsrv"
	"github.com/velora-labs/conversa/pkg/config"
	"github.com/velora-labs/conversa/pkg/database"
)

// Container contiene todas las dependencias de la aplicación
type Container struct {
	Config      *config.Config
	DB          *sqlx.DB
	RedisClient *redis.Client
	MongoClient *mongo.Client

	// Repositorios
	ExecutionRepo   engine.ExecutionRepository
	FlowRepo        engine.FlowRepository
	NodeConfigStore engine.NodeConfigStore
	TicketStore     engine.TicketStore

	// Canal
	MessageLog     channels.MessageLog
	ChannelAdapter engine.ChannelAdapter

	// Bus de notificaciones
	NotificationBus engine.NotificationBus

	// Runtime
	NodeRegistry   *nodeexec.Registry
	Executor       *executor.Executor
	Validator      *validator.Validator
	RuntimeService *enginesrv.Service
	Monitor        *inactivity.Monitor

	// Tenants
	TenantRepo    tenant.TenantRepository
	TenantService *tenantsrv.Service

	// API
	TenantAuth     *engineapi.TenantAuth
	RuntimeHandler *engineapi.RuntimeHandler
	RuntimeRoutes  *engineapi.RuntimeRoutes
	AuthHandler    *engineapi.AuthHandler
	AuthRoutes     *engineapi.AuthRoutes

	// Scheduler del barrido de inactividad
	cron *cron.Cron
}

// NewContainer construye el grafo de dependencias
func NewContainer(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client) *Container {
	c := &Container{
		Config:      cfg,
		DB:          db,
		RedisClient: redisClient,
	}

	c.initMongo()
	c.initRepositories()
	c.initChannel()
	c.initRuntime()
	c.initAPI()
	c.initScheduler()

	return c
}

// initMongo conecta el cliente Mongo compartido. Es opcional: sin MONGO_URI
// los nodos de base documental abren su propia conexión con las credenciales
// del flujo.
func (c *Container) initMongo() {
	client, err := database.NewMongoClient(c.Config.Mongo)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	c.MongoClient = client
	if client != nil {
		log.Println("  ✓ Shared MongoDB client connected")
	}
}

func (c *Container) initRepositories() {
	c.ExecutionRepo = engineinfra.NewPostgresExecutionRepository(c.DB)
	c.FlowRepo = engineinfra.NewPostgresFlowRepository(c.DB)
	c.NodeConfigStore = engineinfra.NewPostgresNodeConfigStore(c.DB)
	c.TicketStore = engineinfra.NewPostgresTicketStore(c.DB)
	c.TenantRepo = tenantinfra.NewPostgresTenantRepository(c.DB)
	log.Println("  ✓ Repositories initialized")
}

func (c *Container) initChannel() {
	c.MessageLog = channelsinfra.NewPostgresMessageLog(c.DB)
	c.ChannelAdapter = httpchannel.NewAdapter(channels.GatewayConfig{
		BaseURL: c.Config.Channel.GatewayURL,
		Token:   c.Config.Channel.GatewayToken,
	}, c.MessageLog, c.Config.Channel.SendTimeout)
	c.NotificationBus = engineinfra.NewRedisNotificationBus(c.RedisClient)
	log.Println("  ✓ Channel adapter initialized")
}

func (c *Container) initRuntime() {
	runtime := &c.Config.Runtime

	httpAction := adapters.NewHTTPAction(runtime.AdapterTimeout, runtime.MaxResponseBytes)
	dbAction := adapters.NewDBAction(runtime.AdapterTimeout, c.MongoClient)

	c.NodeRegistry = nodeexec.NewRegistry(nodeexec.Deps{
		Channel: c.ChannelAdapter,
		Tickets: c.TicketStore,
		Configs: c.NodeConfigStore,
		HTTP:    httpAction,
		DB:      dbAction,
	})

	c.Executor = executor.New(c.NodeRegistry)
	c.Validator = validator.New(runtime.MaxValidationTries)

	c.RuntimeService = enginesrv.NewService(
		c.ExecutionRepo,
		c.FlowRepo,
		c.TicketStore,
		c.ChannelAdapter,
		c.NotificationBus,
		c.Executor,
		c.Validator,
		runtime,
	)

	c.Monitor = inactivity.NewMonitor(
		c.ExecutionRepo,
		c.TicketStore,
		c.ChannelAdapter,
		c.RuntimeService,
		c.RuntimeService,
		runtime,
	)
	c.RuntimeService.AttachMonitor(c.Monitor)

	log.Println("  ✓ Runtime initialized")
}

func (c *Container) initAPI() {
	c.TenantService = tenantsrv.NewService(c.TenantRepo, tenantinfra.NewBcryptCredentialHasher())

	c.TenantAuth = engineapi.NewTenantAuth(c.Config.Auth)
	c.RuntimeHandler = engineapi.NewRuntimeHandler(c.RuntimeService)
	c.RuntimeRoutes = engineapi.NewRuntimeRoutes(c.RuntimeHandler, c.TenantAuth)
	c.AuthHandler = engineapi.NewAuthHandler(c.TenantService, c.TenantAuth, c.Config.Auth.TokenTTL)
	c.AuthRoutes = engineapi.NewAuthRoutes(c.AuthHandler)
	log.Println("  ✓ API handlers initialized")
}

// initScheduler programa el barrido de inactividad con la expresión cron
// configurada
func (c *Container) initScheduler() {
	c.cron = cron.New()

	_, err := c.cron.AddFunc(c.Config.Runtime.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if _, err := c.Monitor.Sweep(ctx, time.Now()); err != nil {
			log.Printf("❌ Inactivity sweep failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Invalid sweep schedule %q: %v", c.Config.Runtime.SweepSchedule, err)
	}

	log.Printf("  ✓ Inactivity sweep scheduled (%s)", c.Config.Runtime.SweepSchedule)
}

// StartScheduler arranca el cron del barrido
func (c *Container) StartScheduler() {
	c.cron.Start()
}

// Cleanup libera recursos al apagar
func (c *Container) Cleanup() {
	if c.cron != nil {
		ctx := c.cron.Stop()
		<-ctx.Done()
	}

	if c.MongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := database.CloseMongo(ctx, c.MongoClient); err != nil {
			log.Printf("❌ Error closing MongoDB client: %v", err)
		}
	}

	log.Println("🧹 Container cleaned up")
}

// HealthCheck verifica el estado de las dependencias externas
func (c *Container) HealthCheck() map[string]bool {
	health := make(map[string]bool)

	health["database"] = c.DB.Ping() == nil

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	health["redis"] = c.RedisClient.Ping(ctx).Err() == nil

	health["scheduler"] = c.cron != nil

	return health
}
