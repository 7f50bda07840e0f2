package worker

import (
	"testing"

	"github.com/relayq/relayq/lib/jobqueue/job"
)

func TestDivideJobsRoundRobins(t *testing.T) {
	inv := newFakeInvoker()
	jobs := []*job.Job{
		newJob(t, inv, "jid-0", "emails"),
		newJob(t, inv, "jid-1", "emails"),
		newJob(t, inv, "jid-2", "emails"),
		newJob(t, inv, "jid-3", "emails"),
		newJob(t, inv, "jid-4", "emails"),
	}

	groups := divideJobs(jobs, 2)
	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}
	if len(groups[0]) != 3 || len(groups[1]) != 2 {
		t.Fatalf("group sizes = %d/%d, want 3/2", len(groups[0]), len(groups[1]))
	}
	if groups[0][0].Jid() != "jid-0" || groups[0][1].Jid() != "jid-2" || groups[0][2].Jid() != "jid-4" {
		t.Fatalf("group 0 = %v, want jid-0,jid-2,jid-4", jidsOf(groups[0]))
	}
	if groups[1][0].Jid() != "jid-1" || groups[1][1].Jid() != "jid-3" {
		t.Fatalf("group 1 = %v, want jid-1,jid-3", jidsOf(groups[1]))
	}
}

func TestDivideJobsEmptyInput(t *testing.T) {
	groups := divideJobs(nil, 3)
	if len(groups) != 3 {
		t.Fatalf("len(groups) = %d, want 3", len(groups))
	}
	for i, g := range groups {
		if g != nil {
			t.Fatalf("group %d = %v, want nil", i, g)
		}
	}
}

func TestJidsOf(t *testing.T) {
	inv := newFakeInvoker()
	jobs := []*job.Job{
		newJob(t, inv, "jid-a", "emails"),
		newJob(t, inv, "jid-b", "emails"),
	}
	got := jidsOf(jobs)
	if len(got) != 2 || got[0] != "jid-a" || got[1] != "jid-b" {
		t.Fatalf("jidsOf() = %v, want [jid-a jid-b]", got)
	}
}

func TestHostCPUCountIsAtLeastOne(t *testing.T) {
	if n := hostCPUCount(); n < 1 {
		t.Fatalf("hostCPUCount() = %d, want >= 1", n)
	}
}

func TestDefaultChildCommandIncludesResumeFlag(t *testing.T) {
	fn := defaultChildCommand("worker-1")
	cmd := fn(2, "/tmp/sandbox-2", []string{"jid-1", "jid-2"})

	found := false
	for i, a := range cmd.Args {
		if a == "--relayq-resume-jids" && i+1 < len(cmd.Args) && cmd.Args[i+1] == "jid-1,jid-2" {
			found = true
		}
	}
	if !found {
		t.Fatalf("cmd.Args = %v, want --relayq-resume-jids jid-1,jid-2", cmd.Args)
	}
}

func TestDefaultChildCommandOmitsResumeFlagWhenNoJids(t *testing.T) {
	fn := defaultChildCommand("worker-1")
	cmd := fn(0, "/tmp/sandbox-0", nil)

	for _, a := range cmd.Args {
		if a == "--relayq-resume-jids" {
			t.Fatal("--relayq-resume-jids present with no jids to resume")
		}
	}
}
