// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package proxmox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
)

// DefaultTaskTimeout bounds a single WaitForTask call end to end.
const DefaultTaskTimeout = 5 * time.Minute

// TaskFailedError reports a hypervisor task that finished unsuccessfully.
type TaskFailedError struct {
	UPID       UPID
	ExitStatus string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.UPID, e.ExitStatus)
}

// errTaskStillRunning drives the retry loop; never returned to callers.
var errTaskStillRunning = errors.New("task still running")

// WaitForTask polls the task until it reaches a terminal status and
// returns it, or *TaskFailedError when the task finished unsuccessfully.
// Transient poll failures are retried within the same deadline.
func WaitForTask(ctx context.Context, api API, node string, upid UPID) (*TaskStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTaskTimeout)
	defer cancel()

	var status *TaskStatus
	err := retry.Do(
		func() error {
			s, err := api.TaskStatus(ctx, node, upid)
			if err != nil {
				return err
			}
			if !s.Finished() {
				return errTaskStillRunning
			}
			status = s
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(time.Second),
		retry.MaxDelay(5*time.Second),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errTaskStillRunning) || IsRetryable(err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("waiting for task %s on %s: %w", upid, node, err)
	}
	if !status.OK() {
		return status, &TaskFailedError{UPID: upid, ExitStatus: status.ExitStatus}
	}
	return status, nil
}

// ExecutionNode returns the node currently owning the VM, found through
// the cluster resources listing.
func ExecutionNode(ctx context.Context, api API, vmID int) (string, error) {
	resources, err := api.ClusterResources(ctx, ResourceKindVM)
	if err != nil {
		return "", err
	}
	for _, r := range resources {
		if r.VMID == vmID {
			return r.Node, nil
		}
	}
	return "", &VmNotFoundError{VMID: vmID}
}
