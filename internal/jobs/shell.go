package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"jobctl/internal/job"
)

// ShellFactoryKey identifies shell jobs in the persisted store.
const ShellFactoryKey = "ShellJob"

// ShellJob runs an arbitrary shell command. The command's combined output
// becomes the job's output data, so a chained dependent can read it as
// input.
type ShellJob struct {
	job.Base
	Command string
}

type shellPayload struct {
	Command string `json:"command"`
}

func NewShellJob(command string, params job.Parameters) *ShellJob {
	return &ShellJob{Base: job.NewBase(params), Command: command}
}

func (j *ShellJob) FactoryKey() string { return ShellFactoryKey }

func (j *ShellJob) Serialize() ([]byte, error) {
	return json.Marshal(shellPayload{Command: j.Command})
}

func (j *ShellJob) Run(ctx context.Context) ([]byte, error) {
	// "sh -c" allows pipes and compound commands.
	cmd := exec.CommandContext(ctx, "sh", "-c", j.Command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("command %q: %w", j.Command, err)
	}
	return output, nil
}

// ShouldRetry treats every command failure as transient; the attempt budget
// and lifespan decide when to give up.
func (j *ShellJob) ShouldRetry(error) bool { return true }

func shellFactory(params job.Parameters, data []byte) (job.Job, error) {
	var p shellPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode shell payload: %w", err)
	}
	if p.Command == "" {
		return nil, fmt.Errorf("shell payload has no command")
	}
	return NewShellJob(p.Command, params), nil
}
