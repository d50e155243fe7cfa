package voice

import (
	"strings"
	"testing"

	"github.com/lukasbauer/apriori/internal/followup"
)

func TestEmbeddedTemplates(t *testing.T) {
	tpls, err := LoadTemplates()
	if err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}

	exit, err := tpls.Render(followup.AgentRequest{CallType: followup.CallTypeExitInterview, Name: "Ana", ManagerName: "Luis"})
	if err != nil {
		t.Fatalf("Render exit: %v", err)
	}
	ids := make([]string, 0, len(exit.DataCollection))
	for _, f := range exit.DataCollection {
		ids = append(ids, f.Identifier+":"+f.DataType)
	}
	if got := strings.Join(ids, ","); got != "primary_reason:String,satisfaction_score:Number,recommendations:Array" {
		t.Errorf("exit data collection = %s", got)
	}
	if !strings.Contains(exit.Prompt, "Manager: Luis") {
		t.Errorf("exit prompt not personalized: %s", exit.Prompt)
	}
	if strings.Contains(exit.Prompt, "PREOCUPACIONES") {
		t.Error("concerns section rendered without concerns")
	}
}

func TestUnknownCallTypeUsesRetentionTemplate(t *testing.T) {
	tpls, err := LoadTemplates()
	if err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}
	cfg, err := tpls.Render(followup.AgentRequest{CallType: followup.CallTypeNDayFollowup, Name: "Ana"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if cfg.Name != "Consulta de Bienestar - Ana" {
		t.Errorf("name = %q", cfg.Name)
	}
}

func TestCommunicationStyleRendered(t *testing.T) {
	tpls, _ := LoadTemplates()
	cfg, err := tpls.Render(followup.AgentRequest{CallType: followup.CallTypeRetentionCheck, CommunicationStyle: "formal"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(cfg.Prompt, "ESTILO DE COMUNICACIÓN PREFERIDO: formal") {
		t.Errorf("prompt = %s", cfg.Prompt)
	}
	if !strings.Contains(cfg.Prompt, "Nombre: N/A") {
		t.Error("empty name should render N/A")
	}
}

func TestParseTemplatesErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"bad yaml", "retention_check: ["},
		{"unknown call type", "welcome_call:\n  name: x\nretention_check:\n  name: y\n"},
		{"missing retention template", "exit_interview:\n  name: x\n"},
		{"bad template syntax", "retention_check:\n  name: \"{{.Name\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTemplates([]byte(tt.raw)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
