package memory

import (
	"strings"
	"time"

	"github.com/prometheus-agent/prometheus/core"
)

// Resource handles are reference-counted by the set of active tasks holding
// them. A handle is released from storage only when the last referencing
// task lets go, so cancellation paths must call ReleaseResources to avoid
// leaking handles.

// AcquireResource stores (or re-references) a handle to an external artifact
// on behalf of a task.
func (m *Manager) AcquireResource(handle string, taskID string) (string, error) {
	lock := m.locks[core.MemoryResource]
	lock.Lock()
	defer lock.Unlock()

	entries, err := m.store.ListMemory(core.MemoryResource)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.Content != handle {
			continue
		}
		refs := splitRefs(entry.Metadata["refs"])
		if !containsRef(refs, taskID) {
			refs = append(refs, taskID)
			entry.Metadata["refs"] = strings.Join(refs, ",")
			if err := m.store.SaveMemory(entry); err != nil {
				return "", err
			}
		}
		return entry.ID, nil
	}

	now := time.Now().UTC()
	entry := core.MemoryEntry{
		ID:      core.NewID(),
		Kind:    core.MemoryResource,
		Content: handle,
		Metadata: map[string]string{
			"task_id": taskID,
			"refs":    taskID,
		},
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if err := m.store.SaveMemory(entry); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// ReleaseResources drops a task's references across all resource handles and
// deletes any handle left with no referencing task.
func (m *Manager) ReleaseResources(taskID string) error {
	lock := m.locks[core.MemoryResource]
	lock.Lock()
	defer lock.Unlock()

	entries, err := m.store.ListMemory(core.MemoryResource)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		refs := splitRefs(entry.Metadata["refs"])
		remaining := refs[:0]
		for _, ref := range refs {
			if ref != taskID {
				remaining = append(remaining, ref)
			}
		}
		if len(remaining) == len(refs) {
			continue
		}
		if len(remaining) == 0 {
			if err := m.store.DeleteMemory(entry.ID); err != nil {
				return err
			}
			m.opts.Logger.Debug("released resource", "resource_id", entry.ID, "handle", entry.Content)
			continue
		}
		entry.Metadata["refs"] = strings.Join(remaining, ",")
		if err := m.store.SaveMemory(entry); err != nil {
			return err
		}
	}
	return nil
}

func splitRefs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func containsRef(refs []string, taskID string) bool {
	for _, r := range refs {
		if r == taskID {
			return true
		}
	}
	return false
}
