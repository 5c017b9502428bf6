//go:build windows

package procclean

import (
	"context"
	"encoding/csv"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// systemInventory enumerates live processes via tasklist in headerless CSV
// format: "Image Name","PID","Session Name","Session#","Mem Usage".
type systemInventory struct{}

func (systemInventory) List(ctx context.Context) ([]Process, error) {
	cmd := exec.CommandContext(ctx, "tasklist", "/FO", "CSV", "/NH")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("tasklist: %w", err)
	}

	reader := csv.NewReader(strings.NewReader(string(output)))
	reader.FieldsPerRecord = -1

	var procs []Process
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		if len(record) < 2 {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			continue
		}
		procs = append(procs, Process{PID: pid, Name: record[0]})
	}
	return procs, nil
}

// killPID force-terminates the given PID via taskkill. The /PID flag is the
// only selector used; /IM (image name) is deliberately never passed.
func killPID(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	cmd := exec.Command("taskkill", "/F", "/PID", strconv.Itoa(pid))
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("taskkill /PID %d: %w: %s", pid, err, strings.TrimSpace(string(output)))
	}
	return nil
}
