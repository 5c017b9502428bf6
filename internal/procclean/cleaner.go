// Package procclean terminates helper processes left behind by an
// interrupted or failed run: browser automation servers, MCP servers, and
// headless Chrome instances spawned on the workflow's behalf.
//
// Safety rule: processes are matched by name against a fixed keyword list,
// but termination is always issued against the PID observed during that same
// enumeration. A kill command is never built from an image name, and the
// cleaner never targets its own or its parent's PID.
package procclean

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/overseerhq/overseer/internal/errors"
	"github.com/overseerhq/overseer/internal/logging"
)

// DefaultKeywords are the helper-process name fragments the cleaner targets.
// A process matches when its lowercased name contains any of these.
var DefaultKeywords = []string{"playwright", "mcp-server", "chrome"}

// DefaultTimeout bounds a full enumerate-and-kill pass. An inventory that
// hangs past this is treated as a cleanup failure, not a reason to block
// the caller indefinitely.
const DefaultTimeout = 10 * time.Second

// Process is one live process as reported by an inventory provider.
type Process struct {
	PID  int
	Name string
}

// Inventory enumerates live processes. The production implementation shells
// out to the platform process lister; tests inject fakes.
type Inventory interface {
	List(ctx context.Context) ([]Process, error)
}

// Result summarizes one cleanup pass. Success is false only when a targeted
// kill (or the enumeration itself) failed; finding nothing to kill is a
// successful no-op.
type Result struct {
	Success         bool     `json:"success"`
	ProcessesFound  int      `json:"processes_found"`
	ProcessesKilled int      `json:"processes_killed"`
	PIDsKilled      []int    `json:"pids_killed,omitempty"`
	Errors          []string `json:"errors,omitempty"`
}

// Cleaner finds and terminates matching helper processes.
type Cleaner struct {
	inventory Inventory
	kill      func(pid int) error
	keywords  []string
	timeout   time.Duration
	selfPID   int
	parentPID int
	log       *logging.Logger
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithInventory replaces the platform inventory provider.
func WithInventory(inv Inventory) Option {
	return func(c *Cleaner) { c.inventory = inv }
}

// WithKillFunc replaces the platform kill function.
func WithKillFunc(kill func(pid int) error) Option {
	return func(c *Cleaner) { c.kill = kill }
}

// WithKeywords replaces the default keyword list.
func WithKeywords(keywords []string) Option {
	return func(c *Cleaner) { c.keywords = keywords }
}

// WithTimeout replaces the default pass timeout. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Cleaner) { c.timeout = d }
}

// New creates a Cleaner with the platform inventory and kill function.
func New(log *logging.Logger, opts ...Option) *Cleaner {
	if log == nil {
		log = logging.NopLogger()
	}
	c := &Cleaner{
		inventory: systemInventory{},
		kill:      killPID,
		keywords:  DefaultKeywords,
		timeout:   DefaultTimeout,
		selfPID:   os.Getpid(),
		parentPID: os.Getppid(),
		log:       log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cleanup enumerates live processes, filters them by keyword, and kills each
// match by PID. Partial failures do not stop the batch; every failed kill is
// recorded and the pass continues with the remaining PIDs.
func (c *Cleaner) Cleanup(ctx context.Context) (*Result, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	result := &Result{Success: true}

	matches, err := c.findMatches(ctx)
	if err != nil {
		result.Success = false
		result.Errors = append(result.Errors, err.Error())
		return result, errors.NewCleanupError(nil, err)
	}

	result.ProcessesFound = len(matches)
	if len(matches) == 0 {
		c.log.Debug("no helper processes found")
		return result, nil
	}

	var failed []int
	for _, p := range matches {
		if err := c.kill(p.PID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("pid %d (%s): %v", p.PID, p.Name, err))
			failed = append(failed, p.PID)
			c.log.Warn("failed to kill helper process", "pid", p.PID, "name", p.Name, "error", err)
			continue
		}
		result.ProcessesKilled++
		result.PIDsKilled = append(result.PIDsKilled, p.PID)
		c.log.Info("killed helper process", "pid", p.PID, "name", p.Name)
	}

	if len(failed) > 0 {
		result.Success = false
		return result, errors.NewCleanupError(failed, nil)
	}
	return result, nil
}

// HasProcesses reports whether any matching helper process is currently live.
func (c *Cleaner) HasProcesses(ctx context.Context) (bool, error) {
	n, err := c.CountProcesses(ctx)
	return n > 0, err
}

// CountProcesses returns the number of live matching helper processes.
func (c *Cleaner) CountProcesses(ctx context.Context) (int, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	matches, err := c.findMatches(ctx)
	if err != nil {
		return 0, errors.NewCleanupError(nil, err)
	}
	return len(matches), nil
}

func (c *Cleaner) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Cleaner) findMatches(ctx context.Context) ([]Process, error) {
	procs, err := c.inventory.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("process enumeration failed: %w", err)
	}

	var matches []Process
	for _, p := range procs {
		if p.PID <= 0 || p.PID == c.selfPID || p.PID == c.parentPID {
			continue
		}
		if c.matchesKeyword(p.Name) {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

func (c *Cleaner) matchesKeyword(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range c.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
