package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pronas-pcd/pronas-core/internal/audit"
	"github.com/pronas-pcd/pronas-core/internal/shared"
	_ "github.com/pronas-pcd/pronas-core/testing"
)

type captureSink struct {
	records []audit.Record
	err     error
}

func (s *captureSink) Append(ctx context.Context, rec audit.Record) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, rec)
	return nil
}

func TestRecordFillsEnvelope(t *testing.T) {
	sink := &captureSink{}
	recorder := audit.NewRecorder(sink, nil, time.Second)

	err := recorder.Record(context.Background(), audit.Event{
		Action:      audit.ActionCreate,
		Resource:    audit.ResourceProject,
		ActorID:     3,
		ActorEmail:  "gestor@aacd.org.br",
		ActorRole:   "manager",
		Meta:        shared.RequestMeta{IP: "10.0.0.1", SessionID: "sess-1"},
		Description: "project created",
		Success:     true,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.records))
	}
	rec := sink.records[0]
	if rec.ID == "" {
		t.Fatal("expected a generated id")
	}
	if rec.CreatedAt.IsZero() {
		t.Fatal("expected a timestamp")
	}
	if rec.Sensitivity != audit.SensitivityInternal {
		t.Fatalf("sensitivity = %q", rec.Sensitivity)
	}
	if rec.IP != "10.0.0.1" || rec.SessionID != "sess-1" {
		t.Fatalf("request meta not carried: %+v", rec)
	}
}

func TestRecordIDsAreMonotonic(t *testing.T) {
	sink := &captureSink{}
	recorder := audit.NewRecorder(sink, nil, time.Second)

	for i := 0; i < 10; i++ {
		err := recorder.Record(context.Background(), audit.Event{
			Action:   audit.ActionUpdate,
			Resource: audit.ResourceProject,
			Success:  true,
		})
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	for i := 1; i < len(sink.records); i++ {
		if sink.records[i-1].ID >= sink.records[i].ID {
			t.Fatalf("ids not increasing: %q then %q", sink.records[i-1].ID, sink.records[i].ID)
		}
	}
}

func TestMutationAppendFailureIsFatal(t *testing.T) {
	sink := &captureSink{err: errors.New("disk full")}
	recorder := audit.NewRecorder(sink, nil, time.Second)

	err := recorder.Record(context.Background(), audit.Event{
		Action:   audit.ActionUpdate,
		Resource: audit.ResourceIdentity,
		Success:  true,
	})
	if !errors.Is(err, shared.ErrAuditWriteFailed) {
		t.Fatalf("expected ErrAuditWriteFailed, got %v", err)
	}
}

func TestReadAppendFailureDegrades(t *testing.T) {
	sink := &captureSink{err: errors.New("disk full")}
	recorder := audit.NewRecorder(sink, nil, time.Second)

	err := recorder.Record(context.Background(), audit.Event{
		Action:   audit.ActionRead,
		Resource: audit.ResourceAudit,
		Success:  true,
	})
	if err != nil {
		t.Fatalf("read append failure should not surface, got %v", err)
	}
}

func TestClassification(t *testing.T) {
	cases := []struct {
		resource audit.Resource
		want     audit.Sensitivity
	}{
		{audit.ResourceIdentity, audit.SensitivityConfidential},
		{audit.ResourceDocument, audit.SensitivityConfidential},
		{audit.ResourceInstitution, audit.SensitivityInternal},
		{audit.ResourceProject, audit.SensitivityInternal},
		{audit.ResourceReport, audit.SensitivityInternal},
		{audit.ResourceAudit, audit.SensitivityRestricted},
		{audit.Resource("unknown"), audit.SensitivityInternal},
	}
	for _, tc := range cases {
		if got := audit.ClassifyResource(tc.resource); got != tc.want {
			t.Fatalf("classify %q = %q, want %q", tc.resource, got, tc.want)
		}
	}
}

func TestMutationTaxonomy(t *testing.T) {
	mutating := []audit.Action{audit.ActionCreate, audit.ActionUpdate, audit.ActionDelete, audit.ActionUpload, audit.ActionApprove, audit.ActionReject}
	for _, action := range mutating {
		if !audit.IsMutation(action) {
			t.Fatalf("%q should be a mutation", action)
		}
	}
	reads := []audit.Action{audit.ActionRead, audit.ActionDownload, audit.ActionExport, audit.ActionLogin, audit.ActionLogout}
	for _, action := range reads {
		if audit.IsMutation(action) {
			t.Fatalf("%q should not be a mutation", action)
		}
	}
}
