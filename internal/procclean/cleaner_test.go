package procclean

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/overseerhq/overseer/internal/logging"
)

// fakeInventory returns a fixed process list, or an error.
type fakeInventory struct {
	procs []Process
	err   error
}

func (f fakeInventory) List(ctx context.Context) ([]Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.procs, f.err
}

// recordingKiller records kills and fails for the configured PIDs.
type recordingKiller struct {
	killed  []int
	failFor map[int]bool
}

func (k *recordingKiller) kill(pid int) error {
	if k.failFor[pid] {
		return fmt.Errorf("access denied")
	}
	k.killed = append(k.killed, pid)
	return nil
}

func newTestCleaner(inv Inventory, killer *recordingKiller, opts ...Option) *Cleaner {
	base := []Option{WithInventory(inv), WithKillFunc(killer.kill)}
	return New(logging.NopLogger(), append(base, opts...)...)
}

func TestCleanupKillsMatchesByPID(t *testing.T) {
	inv := fakeInventory{procs: []Process{
		{PID: 101, Name: "playwright-driver"},
		{PID: 102, Name: "vim"},
		{PID: 103, Name: "mcp-server-filesystem"},
		{PID: 104, Name: "Google Chrome Helper"},
		{PID: 105, Name: "sshd"},
	}}
	killer := &recordingKiller{}

	result, err := newTestCleaner(inv, killer).Cleanup(context.Background())
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	if !result.Success {
		t.Error("Success = false, want true")
	}
	if result.ProcessesFound != 3 || result.ProcessesKilled != 3 {
		t.Errorf("found/killed = %d/%d, want 3/3", result.ProcessesFound, result.ProcessesKilled)
	}

	sort.Ints(killer.killed)
	want := []int{101, 103, 104}
	if !reflect.DeepEqual(killer.killed, want) {
		t.Errorf("killed PIDs = %v, want %v", killer.killed, want)
	}
}

func TestCleanupZeroMatchesIsSuccessfulNoop(t *testing.T) {
	inv := fakeInventory{procs: []Process{
		{PID: 201, Name: "systemd"},
		{PID: 202, Name: "bash"},
	}}
	killer := &recordingKiller{}

	result, err := newTestCleaner(inv, killer).Cleanup(context.Background())
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	if !result.Success || result.ProcessesKilled != 0 {
		t.Errorf("result = %+v, want success with zero kills", result)
	}
	if len(killer.killed) != 0 {
		t.Errorf("kill was invoked for %v", killer.killed)
	}
}

func TestCleanupPartialFailureContinuesBatch(t *testing.T) {
	inv := fakeInventory{procs: []Process{
		{PID: 301, Name: "chrome"},
		{PID: 302, Name: "chrome"},
		{PID: 303, Name: "chrome"},
	}}
	killer := &recordingKiller{failFor: map[int]bool{302: true}}

	result, err := newTestCleaner(inv, killer).Cleanup(context.Background())
	if err == nil {
		t.Fatal("Cleanup should report an error when a kill fails")
	}

	if result.Success {
		t.Error("Success = true, want false after a failed kill")
	}
	if result.ProcessesKilled != 2 {
		t.Errorf("ProcessesKilled = %d, want 2 (batch continues past the failure)", result.ProcessesKilled)
	}
	if len(result.Errors) != 1 {
		t.Errorf("Errors = %v, want one entry", result.Errors)
	}

	sort.Ints(killer.killed)
	if !reflect.DeepEqual(killer.killed, []int{301, 303}) {
		t.Errorf("killed PIDs = %v, want [301 303]", killer.killed)
	}
}

func TestCleanupNeverTargetsOwnOrParentPID(t *testing.T) {
	inv := fakeInventory{procs: []Process{
		{PID: os.Getpid(), Name: "chrome-lookalike"},
		{PID: os.Getppid(), Name: "mcp-server"},
		{PID: 401, Name: "playwright"},
	}}
	killer := &recordingKiller{}

	result, err := newTestCleaner(inv, killer).Cleanup(context.Background())
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	if result.ProcessesFound != 1 {
		t.Errorf("ProcessesFound = %d, want 1 (self and parent excluded)", result.ProcessesFound)
	}
	if !reflect.DeepEqual(killer.killed, []int{401}) {
		t.Errorf("killed PIDs = %v, want [401]", killer.killed)
	}
}

func TestCleanupInventoryFailure(t *testing.T) {
	inv := fakeInventory{err: errors.New("ps not found")}
	killer := &recordingKiller{}

	result, err := newTestCleaner(inv, killer).Cleanup(context.Background())
	if err == nil {
		t.Fatal("Cleanup should fail when enumeration fails")
	}
	if result.Success {
		t.Error("Success = true, want false")
	}
	if len(killer.killed) != 0 {
		t.Error("no kill should be attempted without an inventory")
	}
}

func TestCleanupHonorsContextTimeout(t *testing.T) {
	// Inventory that blocks until the context is done.
	blocking := inventoryFunc(func(ctx context.Context) ([]Process, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	killer := &recordingKiller{}

	c := New(logging.NopLogger(),
		WithInventory(blocking),
		WithKillFunc(killer.kill),
		WithTimeout(20*time.Millisecond))

	start := time.Now()
	result, err := c.Cleanup(context.Background())
	if err == nil {
		t.Fatal("Cleanup should fail when enumeration hangs")
	}
	if result.Success {
		t.Error("Success = true, want false on timeout")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Cleanup blocked for %v, timeout not applied", elapsed)
	}
}

type inventoryFunc func(ctx context.Context) ([]Process, error)

func (f inventoryFunc) List(ctx context.Context) ([]Process, error) { return f(ctx) }

func TestCountAndHasProcesses(t *testing.T) {
	inv := fakeInventory{procs: []Process{
		{PID: 501, Name: "playwright"},
		{PID: 502, Name: "chrome"},
		{PID: 503, Name: "bash"},
	}}
	killer := &recordingKiller{}
	c := newTestCleaner(inv, killer)

	n, err := c.CountProcesses(context.Background())
	if err != nil {
		t.Fatalf("CountProcesses failed: %v", err)
	}
	if n != 2 {
		t.Errorf("CountProcesses = %d, want 2", n)
	}

	has, err := c.HasProcesses(context.Background())
	if err != nil {
		t.Fatalf("HasProcesses failed: %v", err)
	}
	if !has {
		t.Error("HasProcesses = false, want true")
	}

	empty := newTestCleaner(fakeInventory{}, killer)
	has, err = empty.HasProcesses(context.Background())
	if err != nil {
		t.Fatalf("HasProcesses failed: %v", err)
	}
	if has {
		t.Error("HasProcesses = true for empty inventory")
	}
}

func TestMatchesKeywordCaseInsensitive(t *testing.T) {
	c := New(logging.NopLogger())

	tests := []struct {
		name string
		want bool
	}{
		{"Playwright Server", true},
		{"MCP-SERVER-github", true},
		{"chrome_crashpad_handler", true},
		{"node", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := c.matchesKeyword(tt.name); got != tt.want {
			t.Errorf("matchesKeyword(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
