package core

import (
	"fmt"
	"testing"

	"github.com/valter-silva-au/heady-conductor/pkg/models"
	"pgregory.net/rapid"
)

func TestExecutionLog_DropsOldest(t *testing.T) {
	l := NewExecutionLog(3)
	for i := 0; i < 5; i++ {
		l.Append(models.ExecutionLogEntry{Name: fmt.Sprint(i)})
	}
	got := l.Entries()
	if len(got) != 3 || got[0].Name != "2" || got[2].Name != "4" {
		t.Errorf("Entries() = %+v, want 2,3,4", got)
	}
}

func TestExecutionLog_DefaultCapacity(t *testing.T) {
	if c := NewExecutionLog(0).Cap(); c != 1000 {
		t.Errorf("Cap() = %d, want 1000", c)
	}
}

// Feature: dispatcher, Property 4: the execution log never exceeds its capacity
func TestProperty_ExecutionLogBounded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 50).Draw(rt, "capacity")
		n := rapid.IntRange(0, 200).Draw(rt, "appends")
		l := NewExecutionLog(capacity)
		for i := 0; i < n; i++ {
			l.Append(models.ExecutionLogEntry{Name: fmt.Sprint(i)})
			if l.Len() > capacity {
				t.Fatalf("Len() = %d exceeds capacity %d", l.Len(), capacity)
			}
		}
		entries := l.Entries()
		if n > 0 && entries[len(entries)-1].Name != fmt.Sprint(n-1) {
			t.Fatalf("last entry = %q, want %d", entries[len(entries)-1].Name, n-1)
		}
	})
}

func TestDispatcher_ExecutionLogBoundedAt1000(t *testing.T) {
	d, _ := newTestDispatcher(t)
	for i := 0; i < 1100; i++ {
		d.ExecuteWorkflow(t.Context(), "missing", nil)
	}
	if got := len(d.ExecutionLog()); got != 1000 {
		t.Errorf("log entries = %d, want 1000", got)
	}
}
