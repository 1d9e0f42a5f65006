package container

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/export"
	infraLark "github.com/garyjia/expense-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-approval/internal/infrastructure/messaging/kafka"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/internal/infrastructure/worker"
	"github.com/garyjia/expense-approval/migrations"
	"github.com/garyjia/expense-approval/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// NotifierBundle holds the outbound notification channels.
type NotifierBundle struct {
	Notifiers []port.Notifier
	Publisher port.EventPublisher
}

// ProvideDatabase opens the database, applies the embedded migrations and
// wraps the connection in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(conn, logger).RunMigrations(migrations.FS); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories on the transaction manager.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	users := repository.NewUserRepository(db, logger)
	return &RepositoryBundle{
		Company:    repository.NewCompanyRepository(db, logger),
		User:       users,
		Identity:   users,
		Flow:       repository.NewFlowRepository(db, logger),
		Expense:    repository.NewExpenseRepository(db, logger),
		Assignment: repository.NewAssignmentRepository(db, logger),
		History:    repository.NewHistoryRepository(db, logger),
	}, nil
}

// ProvideNotifiers creates the enabled notification channels. Either may be absent.
func ProvideNotifiers(larkCfg *LarkConfig, kafkaCfg *KafkaConfig, users port.UserRepository, logger *zap.Logger) (*NotifierBundle, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	bundle := &NotifierBundle{}

	if larkCfg != nil && larkCfg.Enabled {
		sdkClient := infraLark.NewSDKClient(infraLark.Config{
			AppID:     larkCfg.AppID,
			AppSecret: larkCfg.AppSecret,
		}, logger)
		bundle.Notifiers = append(bundle.Notifiers, infraLark.NewNotifier(sdkClient, users, logger))
	}

	if kafkaCfg != nil && kafkaCfg.Enabled {
		publisher, err := kafka.NewPublisher(kafka.Config{
			Brokers:      kafkaCfg.Brokers,
			Topic:        kafkaCfg.Topic,
			WriteTimeout: kafkaCfg.WriteTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
		bundle.Publisher = publisher
	}

	return bundle, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(cfg *ApprovalConfig, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []dispatcher.Option{dispatcher.WithLogger(&zapLoggerAdapter{logger: logger})}
	if cfg != nil && cfg.HandlerTimeout > 0 {
		opts = append(opts, dispatcher.WithHandlerTimeout(cfg.HandlerTimeout))
	}
	return dispatcher.NewDispatcher(opts...), nil
}

// WorkflowDeps holds dependencies required for creating the workflow engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Config     *ApprovalConfig
	Logger     *zap.Logger
}

// ProvideWorkflowEngine wires resolver, assignment factory and engine.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.Engine, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	logger := &zapLoggerAdapter{logger: deps.Logger.Named("workflow")}
	resolver := workflow.NewResolver(deps.Repos.Identity, logger)
	factory := workflow.NewAssignmentFactory(resolver, deps.Repos.Assignment, logger)

	lock := true
	if deps.Config != nil {
		lock = deps.Config.LockPerExpense
	}

	return workflow.NewEngine(
		deps.Repos.Flow,
		deps.Repos.Expense,
		deps.Repos.Assignment,
		deps.Repos.History,
		deps.TxManager,
		factory,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(logger),
		workflow.WithExpenseLock(lock),
	), nil
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Engine     workflow.Engine
	Dispatcher dispatcher.Dispatcher
	Notifiers  *NotifierBundle
	Logger     *zap.Logger
}

// ProvideServices creates all application services and subscribes the
// notification service on the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("workflow engine is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}
	repos := deps.Repos

	notifiers := deps.Notifiers
	if notifiers == nil {
		notifiers = &NotifierBundle{}
	}
	notification := service.NewNotificationService(repos.Expense, notifiers.Notifiers, notifiers.Publisher, serviceLogger)
	if deps.Dispatcher != nil {
		notification.Register(deps.Dispatcher)
	}

	flows := service.NewFlowService(repos.Company, repos.User, repos.Flow, deps.TxManager, serviceLogger)

	return &ServiceBundle{
		Expense: service.NewExpenseService(repos.Company, repos.User, repos.Expense, repos.Assignment, deps.Engine, serviceLogger),
		Flow:    flows,
		Approval: service.NewApprovalService(
			repos.Expense,
			repos.Assignment,
			repos.History,
			deps.Engine,
			serviceLogger,
		),
		Report:       service.NewReportService(repos.Expense, repos.History, export.NewXLSXExporter(deps.Logger), serviceLogger),
		Directory:    service.NewDirectoryService(repos.Company, repos.User, flows, deps.TxManager, serviceLogger),
		Notification: notification,
	}, nil
}

// WorkerDeps holds dependencies required for creating workers.
type WorkerDeps struct {
	Repos      *RepositoryBundle
	Dispatcher dispatcher.Dispatcher
	Config     *ApprovalConfig
	Logger     *zap.Logger
}

// ProvideWorkers creates and registers all background workers.
// Returns *worker.WorkerManager with all workers registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	if deps.Config != nil && deps.Config.ReminderSchedule != "" {
		reminder, err := worker.NewReminderWorker(deps.Repos.Assignment, deps.Dispatcher, worker.ReminderConfig{
			Schedule: deps.Config.ReminderSchedule,
			After:    deps.Config.ReminderAfter,
		}, deps.Logger)
		if err != nil {
			return nil, err
		}
		manager.Register(reminder)
	}

	return manager, nil
}
