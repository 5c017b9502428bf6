//go:build unix

package procclean

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// systemInventory enumerates live processes via ps. The headerless
// pid=,comm= format keeps parsing to two whitespace-separated columns.
type systemInventory struct{}

func (systemInventory) List(ctx context.Context) ([]Process, error) {
	cmd := exec.CommandContext(ctx, "ps", "-eo", "pid=,comm=")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ps: %w", err)
	}

	var procs []Process
	for _, line := range strings.Split(string(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		procs = append(procs, Process{PID: pid, Name: strings.Join(fields[1:], " ")})
	}
	return procs, nil
}

// killPID sends SIGKILL to the given PID. SIGKILL rather than SIGTERM: the
// targets are orphaned automation helpers with no state worth a graceful
// shutdown, and a hung helper ignoring SIGTERM would stall the retry path.
func killPID(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	return syscall.Kill(pid, syscall.SIGKILL)
}
