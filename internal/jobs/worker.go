package jobs

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/hibiken/asynq"
)

const (
	taskTypeConvert = "convert:document"

	// 同時に実行する変換タスク数。
	convertConcurrency = 4

	// ローカルワーカーの待ち行列長。満杯のときは Schedule がブロックします。
	localQueueSize = 128
)

type taskHandler func(ctx context.Context, payload TaskPayload) error

// runner は変換タスクの実行基盤を抽象化します。
// Redis が使える場合は Asynq、使えない場合はプロセス内ワーカープールが選ばれます。
type runner interface {
	Start()
	Schedule(ctx context.Context, payload TaskPayload) error
	Shutdown()
}

// asynqRunner は Asynq キュー経由でタスクを実行します。
type asynqRunner struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *log.Logger
}

func newAsynqRunner(redisAddr string, handler taskHandler, logger *log.Logger) *asynqRunner {
	opt := asynq.RedisClientOpt{Addr: redisAddr}
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: convertConcurrency,
			Queues: map[string]int{
				"convert": 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(taskTypeConvert, func(ctx context.Context, task *asynq.Task) error {
		var payload TaskPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return err
		}
		return handler(ctx, payload)
	})

	return &asynqRunner{
		client: asynq.NewClient(opt),
		server: server,
		mux:    mux,
		logger: logger,
	}
}

func (r *asynqRunner) Start() {
	go func() {
		if err := r.server.Run(r.mux); err != nil && err != asynq.ErrServerClosed {
			r.logger.Printf("asynq server stopped with error: %v", err)
		}
	}()
}

func (r *asynqRunner) Schedule(ctx context.Context, payload TaskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	task := asynq.NewTask(taskTypeConvert, body, asynq.Queue("convert"))
	_, err = r.client.EnqueueContext(ctx, task, asynq.MaxRetry(1))
	return err
}

func (r *asynqRunner) Shutdown() {
	r.server.Shutdown()
	r.client.Close()
}

// localRunner は Redis のない環境向けのプロセス内ワーカープールです。
type localRunner struct {
	tasks   chan TaskPayload
	handler taskHandler
	logger  *log.Logger
	quit    chan struct{}
	wg      sync.WaitGroup
	workers int
}

func newLocalRunner(workers int, handler taskHandler, logger *log.Logger) *localRunner {
	if workers <= 0 {
		workers = convertConcurrency
	}
	return &localRunner{
		tasks:   make(chan TaskPayload, localQueueSize),
		handler: handler,
		logger:  logger,
		quit:    make(chan struct{}),
		workers: workers,
	}
}

func (r *localRunner) Start() {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			for {
				select {
				case payload := <-r.tasks:
					// タスクはリクエストとは独立したライフサイクルで実行する
					if err := r.handler(context.Background(), payload); err != nil {
						r.logger.Printf("convert task failed job=%s: %v", payload.JobID, err)
					}
				case <-r.quit:
					return
				}
			}
		}()
	}
}

func (r *localRunner) Schedule(ctx context.Context, payload TaskPayload) error {
	select {
	case r.tasks <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.quit:
		return context.Canceled
	}
}

func (r *localRunner) Shutdown() {
	close(r.quit)
	r.wg.Wait()
}
