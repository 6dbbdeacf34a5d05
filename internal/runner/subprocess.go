package runner

import (
	"bytes"
	"context"
	"os/exec"
	"syscall"
	"time"
)

// runCommand spawns argv in its own process group, captures stdout
// and stderr as raw strings (no eval), and kills the process group
// with SIGTERM then SIGKILL after GracePeriod if execCtx is cancelled
// (either the Work's own timeout or an outer shutdown signal).
func runCommand(execCtx context.Context, argv []string) dispatchOutcome {
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return dispatchOutcome{err: err}
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	select {
	case <-execCtx.Done():
		killProcessGroup(cmd.Process.Pid)
		<-waitDone
		return dispatchOutcome{err: execCtx.Err()}
	case err := <-waitDone:
		returncode := 0
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
					returncode = status.ExitStatus()
				} else {
					returncode = -1
				}
			} else {
				return dispatchOutcome{err: err}
			}
		}

		results := map[string]interface{}{
			"args":       argv,
			"stdout":     stdout.String(),
			"stderr":     stderr.String(),
			"returncode": returncode,
		}
		return dispatchOutcome{results: results, failed: returncode != 0}
	}
}

func killProcessGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	go func() {
		time.Sleep(GracePeriod)
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}()
}
