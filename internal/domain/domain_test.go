package domain_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/tenant-onboarding/internal/domain"
)

func TestValidCNPJ(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"11.222.333/0001-81": true,
		"11222333000181":     true,
		"11444777000161":     true,
		"04.252.011/0001-10": true,
		"11.222.333/0001-82": false,
		"11111111111111":     false,
		"1122233300018":      false,
		"":                   false,
		"abc":                false,
	}

	for input, want := range cases {
		if got := domain.ValidCNPJ(input); got != want {
			t.Errorf("ValidCNPJ(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestCodeKeyIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	if domain.CodeKey("TI") != domain.CodeKey("ti") {
		t.Fatal("expected TI and ti to share a key")
	}
	if domain.CodeKey(" Fin ") != domain.CodeKey("FIN") {
		t.Fatal("expected surrounding spaces to be ignored")
	}
	if domain.CodeKey("RH") == domain.CodeKey("TI") {
		t.Fatal("expected different codes to differ")
	}
}

func TestStepTable(t *testing.T) {
	t.Parallel()

	required := domain.RequiredSteps()
	want := []int{1, 3, 6}
	if len(required) != len(want) {
		t.Fatalf("expected required steps %v, got %v", want, required)
	}
	for i := range want {
		if required[i] != want[i] {
			t.Fatalf("expected required steps %v, got %v", want, required)
		}
	}

	for n := domain.FirstStep; n <= domain.LastStep; n++ {
		def, err := domain.LookupStep(n)
		if err != nil {
			t.Fatalf("step %d: %v", n, err)
		}
		if def.Required && def.Skippable {
			t.Errorf("step %d cannot be both required and skippable", n)
		}
	}

	review, _ := domain.LookupStep(9)
	if !review.Terminal || review.Skippable {
		t.Fatal("review step must be terminal and not skippable")
	}

	if _, err := domain.LookupStep(10); !errors.Is(err, domain.ErrInvalidStep) {
		t.Fatalf("expected ErrInvalidStep, got %v", err)
	}
}

func TestSetupProgressMarks(t *testing.T) {
	t.Parallel()

	p := domain.NewSetupProgress(uuid.New())
	p.MarkCompleted(3)
	p.MarkCompleted(1)
	p.MarkCompleted(1)
	p.MarkSkipped(2)
	p.MarkSkipped(1)

	if len(p.CompletedSteps) != 2 || p.CompletedSteps[0] != 1 || p.CompletedSteps[1] != 3 {
		t.Fatalf("unexpected completed steps: %v", p.CompletedSteps)
	}
	if len(p.SkippedSteps) != 1 || p.SkippedSteps[0] != 2 {
		t.Fatalf("unexpected skipped steps: %v", p.SkippedSteps)
	}

	if missing, ok := p.MissingRequiredBefore(9); !ok || missing != 6 {
		t.Fatalf("expected step 6 to be missing, got %d (%v)", missing, ok)
	}

	clone := p.Clone()
	clone.MarkCompleted(6)
	if p.IsCompleted(6) {
		t.Fatal("clone must not share completed steps")
	}
}

func TestDecodeStepPayload(t *testing.T) {
	t.Parallel()

	payload, err := domain.DecodeStepPayload(3, []byte(`{"weeklyHours": 40, "dailyHours": "8.5", "overtimeRequiresApproval": true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rules, ok := payload.(*domain.LaborRules)
	if !ok {
		t.Fatalf("expected *LaborRules, got %T", payload)
	}
	if rules.WeeklyHours.String() != "40" || rules.DailyHours.String() != "8.5" {
		t.Fatalf("unexpected hours: %s / %s", rules.WeeklyHours, rules.DailyHours)
	}
	if rules.AnnualVacationDays != 30 {
		t.Fatalf("expected default vacation days to be kept, got %d", rules.AnnualVacationDays)
	}

	if _, err := domain.DecodeStepPayload(3, []byte(`{"toleranceMinutes": "ten"}`)); err == nil {
		t.Fatal("expected type mismatch error")
	}

	empty, err := domain.DecodeStepPayload(9, nil)
	if err != nil || empty.StepNumber() != 9 {
		t.Fatalf("expected empty review payload, got %v / %v", empty, err)
	}
}

func TestModulesNormalize(t *testing.T) {
	t.Parallel()

	var m domain.Modules
	if err := json.Unmarshal([]byte(`{"enabled": {"employees": false, "learning": true, "unknown": true}}`), &m); err != nil {
		t.Fatal(err)
	}
	m.Normalize()

	for _, core := range domain.CoreModules {
		if !m.Enabled[core] {
			t.Errorf("core module %s must stay enabled", core)
		}
	}
	if !m.Enabled["learning"] {
		t.Error("expected learning to stay enabled")
	}
	if _, ok := m.Enabled["unknown"]; ok {
		t.Error("unknown module key must be dropped")
	}
	if len(m.Enabled) != len(domain.AvailableModules) {
		t.Errorf("expected %d module keys, got %d", len(domain.AvailableModules), len(m.Enabled))
	}
}

func TestValidationErrorIs(t *testing.T) {
	t.Parallel()

	err := domain.NewValidationError(map[string]string{"taxId": "invalid", "legalName": "required"})
	if !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatal("expected ValidationError to match ErrValidationFailed")
	}
	if err.Error() != "validation failed: legalName: required; taxId: invalid" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}
