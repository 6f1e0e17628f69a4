package main

import (
	"context"
	"fmt"
	"log"
	"time"

	common_api "go-helpdesk/internal/common/api"
	"go-helpdesk/internal/config"
	"go-helpdesk/internal/connectors"
	"go-helpdesk/internal/database"
	"go-helpdesk/internal/features/automation"
	"go-helpdesk/internal/features/notification"
	"go-helpdesk/internal/features/sla"
	"go-helpdesk/internal/features/system"
	"go-helpdesk/internal/features/ticket"
	"go-helpdesk/internal/features/triage"
	"go-helpdesk/internal/features/user"
	"go-helpdesk/internal/logger"
	"go-helpdesk/internal/middleware"
	"go-helpdesk/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware())

	return app
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route) {
	for _, route := range routes {
		route.Setup(app)
	}
}

var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// NewOrderContextProvider wires the read-only ERP connector when a DSN is
// configured and falls back to the noop provider otherwise.
func NewOrderContextProvider(lc fx.Lifecycle, cfg *config.Config) (connectors.OrderContextProvider, error) {
	if cfg.ERPDSN == "" {
		return connectors.NoopProvider{}, nil
	}

	erp, err := connectors.NewERPConnector(cfg.ERPDSN)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return erp.Close()
		},
	})
	return erp, nil
}

func NewHub(cfg *config.Config, zapLogger *zap.Logger) *notification.Hub {
	return notification.NewHub(cfg.PushTimeout, zapLogger)
}

func NewFanout(repo notification.NotificationRepository, hub *notification.Hub, cfg *config.Config, zapLogger *zap.Logger) *notification.Fanout {
	return notification.NewFanout(repo, hub, cfg.NotifyQueueSize, zapLogger)
}

func NewRuleCache(repo automation.RuleRepository, cfg *config.Config) *automation.RuleCache {
	return automation.NewRuleCache(repo, cfg.RuleCacheTTL)
}

func NewActionExecutor(
	tickets ticket.TicketRepository,
	users user.UserRepository,
	notifier automation.Notifier,
	cfg *config.Config,
	zapLogger *zap.Logger,
) *automation.ActionExecutor {
	return automation.NewActionExecutor(tickets, users, notifier, cfg.ActionTimeout, zapLogger)
}

func NewDispatcher(
	cache *automation.RuleCache,
	tickets ticket.TicketRepository,
	orders connectors.OrderContextProvider,
	executor *automation.ActionExecutor,
	recorder automation.ExecutionRepository,
	cfg *config.Config,
	zapLogger *zap.Logger,
) *automation.Dispatcher {
	return automation.NewDispatcher(cache, tickets, orders, executor, recorder, cfg.EventQueueSize, cfg.EventWorkers, zapLogger)
}

func NewSLAMonitor(
	tickets ticket.TicketRepository,
	events sla.EventSink,
	cfg *config.Config,
	zapLogger *zap.Logger,
) *sla.Monitor {
	return sla.NewMonitor(tickets, events, cfg.SLASweepInterval, cfg.SLAWarningWindow, cfg.UnassignedTimeout, zapLogger)
}

// StartEngine ties the background workers to the fx lifecycle: fan-out and
// dispatcher first, then the SLA monitor that feeds them.
func StartEngine(lc fx.Lifecycle, fanout *notification.Fanout, dispatcher *automation.Dispatcher, monitor *sla.Monitor) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			fanout.Start()
			dispatcher.Start()
			return monitor.Start()
		},
		OnStop: func(ctx context.Context) error {
			if err := monitor.Stop(ctx); err != nil {
				return err
			}
			if err := dispatcher.Stop(ctx); err != nil {
				return err
			}
			return fanout.Stop(ctx)
		},
	})
}

// InitializeIndexes ensures that necessary database indexes are created
func InitializeIndexes(
	lc fx.Lifecycle,
	tickets ticket.TicketRepository,
	notifications notification.NotificationRepository,
	rules automation.RuleRepository,
	executions automation.ExecutionRepository,
	zapLogger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				for name, ensure := range map[string]func(context.Context) error{
					"tickets":       tickets.EnsureIndexes,
					"notifications": notifications.EnsureIndexes,
					"rules":         rules.EnsureIndexes,
					"executions":    executions.EnsureIndexes,
				} {
					if err := ensure(ctx); err != nil {
						zapLogger.Error("failed to ensure indexes",
							zap.String("collection", name),
							zap.Error(err),
						)
					}
				}
			}()
			return nil
		},
	})
}

func main() {
	app := fx.New(
		fx.Provide(
			// Load Config
			config.LoadConfig,

			// Initialize Logger
			logger.NewLogger,

			// Initialize Fiber Server
			NewFiberServer,

			// Initialize Database
			database.NewDatabase,

			// External collaborators
			NewOrderContextProvider,

			// Initialize Repository
			ticket.NewTicketRepository,
			ticket.NewMessageRepository,
			user.NewUserRepository,
			notification.NewNotificationRepository,
			automation.NewRuleRepository,
			automation.NewExecutionRepository,

			// Engine internals
			NewHub,
			NewFanout,
			NewRuleCache,
			NewActionExecutor,
			NewDispatcher,
			NewSLAMonitor,

			// Services
			ticket.NewTicketService,
			triage.NewQueueService,
			automation.NewRuleService,

			// Interface adapters to break package cycles and satisfy Fx
			func(f *notification.Fanout) automation.Notifier { return f },
			func(d *automation.Dispatcher) ticket.EventSink { return d },
			func(d *automation.Dispatcher) sla.EventSink { return d },

			// Initialize Controller
			ticket.NewTicketController,
			triage.NewTriageController,
			notification.NewNotificationController,
			automation.NewAutomationController,

			// Initialize API Routes
			AsRoute(system.NewHealthApi),
			AsRoute(ticket.NewTicketApi),
			AsRoute(triage.NewTriageApi),
			AsRoute(notification.NewNotificationApi),
			AsRoute(automation.NewAutomationApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			func(cfg *config.Config) { utils.SetSecret(cfg.JWTSecret) },
			RegisterAllRoutesWithAnnotation,
			StartServer,
			StartEngine,
			InitializeIndexes,
		),
	)

	app.Run()
}
