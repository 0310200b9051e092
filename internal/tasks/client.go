// Package tasks runs library housekeeping on a persistent backlite queue.
//
// The queue lives in its own SQLite file next to the catalog database
// (libmanage.db -> libmanage-tasks.db) so workers never contend with
// request traffic for the catalog's write lock.
package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikestefanello/backlite"
)

// Client owns the queue database and its workers.
type Client struct {
	client *backlite.Client
	db     *sql.DB
	config Config

	mu      sync.Mutex
	started bool
}

// TasksDBPath derives the queue database path from the catalog path.
func TasksDBPath(mainDBPath string) string {
	dir, base := filepath.Split(mainDBPath)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+"-tasks"+ext)
}

func NewClient(mainDBPath string, cfg Config) (*Client, error) {
	db, err := sql.Open("sqlite3", TasksDBPath(mainDBPath)+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open tasks database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Workers + 4)
	db.SetMaxIdleConns(cfg.Workers + 1)
	db.SetConnMaxLifetime(time.Hour)

	client, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      cfg.Workers,
		ReleaseAfter:    cfg.ReleaseAfter,
		CleanupInterval: cfg.CleanupInterval,
		Logger:          taskLogger{},
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create task client: %w", err)
	}
	if err := client.Install(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to install task schema: %w", err)
	}

	return &Client{client: client, db: db, config: cfg}, nil
}

// Register adds queues. Call it before Start.
func (c *Client) Register(queues ...backlite.Queue) {
	for _, q := range queues {
		c.client.Register(q)
	}
}

// Start launches the workers and returns immediately.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	log.Printf("[TASK] Queue started with %d workers", c.config.Workers)
	c.client.Start(ctx)
}

// Stop waits for running tasks until ctx expires and reports whether all
// of them finished.
func (c *Client) Stop(ctx context.Context) bool {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return true
	}

	ok := c.client.Stop(ctx)
	if ok {
		log.Println("[TASK] Queue stopped gracefully")
	} else {
		log.Println("[TASK] Queue stopped before all tasks completed")
	}
	return ok
}

func (c *Client) Close() error {
	return c.db.Close()
}

// Add starts an enqueue operation; finish it with Save or Ctx(ctx).Save.
func (c *Client) Add(tasks ...backlite.Task) *backlite.TaskAddOp {
	return c.client.Add(tasks...)
}

func (c *Client) Status(ctx context.Context, taskID string) (backlite.TaskStatus, error) {
	return c.client.Status(ctx, taskID)
}

type taskLogger struct{}

func (taskLogger) Info(message string, params ...any) {
	log.Println(formatLog("[TASK] ", message, params))
}

func (taskLogger) Error(message string, params ...any) {
	log.Println(formatLog("[TASK ERROR] ", message, params))
}

// formatLog renders backlite's key/value params after the message.
func formatLog(prefix, message string, params []any) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(message)
	for i := 0; i+1 < len(params); i += 2 {
		fmt.Fprintf(&b, " %v=%v", params[i], params[i+1])
	}
	return b.String()
}
