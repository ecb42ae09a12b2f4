package flow

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/flowdesk/flowdesk/internal/models"
)

func TestRenderMenuSubstitutesVariables(t *testing.T) {
	def := ClinicFlow()
	vars := map[string]string{"brandName": "Podopié Centro", "patientName": "Ana"}

	msg := RenderMenu(def, &def.MainMenu, vars)
	if !strings.Contains(msg.Body, "Podopié Centro") {
		t.Errorf("expected brand name substituted, got %q", msg.Body)
	}
	if strings.Contains(msg.Body, "{{") {
		t.Errorf("no placeholder tokens should survive rendering, got %q", msg.Body)
	}

	patient := RenderMenu(def, def.PatientMenu, vars)
	if !strings.Contains(patient.Body, "Ana") {
		t.Errorf("expected patient name substituted, got %q", patient.Body)
	}
}

func TestRenderMenuFallsBackToTemplateDefaults(t *testing.T) {
	def := ClinicFlow()
	// No vars supplied; the flow's templateDefaults should fill the gaps.
	msg := RenderMenu(def, def.PatientMenu, nil)
	if !strings.Contains(msg.Body, "paciente") {
		t.Errorf("expected templateDefaults fallback, got %q", msg.Body)
	}
	if strings.Contains(msg.Body, "{{") {
		t.Errorf("no placeholder tokens should survive rendering, got %q", msg.Body)
	}
}

func TestRenderMenuMissingVariableRendersEmpty(t *testing.T) {
	def := GeneralFlow()
	def.Config.TemplateDefaults = nil
	def.MainMenu.Body = "Hola {{brandName}}, visita {{missingVar}} hoy"

	msg := RenderMenu(def, &def.MainMenu, map[string]string{"brandName": "Acme"})
	if strings.Contains(msg.Body, "{{") || strings.Contains(msg.Body, "}}") {
		t.Errorf("missing variable must render as empty string, got %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "Acme") {
		t.Errorf("provided variable should still substitute, got %q", msg.Body)
	}
}

func TestRenderMenuTruncatesOverLimits(t *testing.T) {
	def := GeneralFlow()
	def.Config.MaxListRows = 2

	longTitle := strings.Repeat("t", models.MaxRowTitleLength+10)
	longDesc := strings.Repeat("d", models.MaxRowDescriptionLength+10)
	tmpl := &models.MenuTemplate{
		Body:   strings.Repeat("b", models.MaxMenuBodyLength+50),
		Button: "Opciones",
		Sections: []models.MenuSection{
			{
				Rows: []models.MenuRow{
					{ID: "INFO_HOURS", Title: longTitle, Description: longDesc},
					{ID: "INFO_LOCATION", Title: "Ubicación"},
					{ID: models.ActionHandoff, Title: "Agente"},
				},
			},
		},
	}

	msg := RenderMenu(def, tmpl, nil)
	if len(msg.Body) != models.MaxMenuBodyLength {
		t.Errorf("body should be truncated to %d, got %d", models.MaxMenuBodyLength, len(msg.Body))
	}
	if len(msg.Sections[0].Rows) != 2 {
		t.Errorf("section should be truncated to 2 rows, got %d", len(msg.Sections[0].Rows))
	}
	if len(msg.Sections[0].Rows[0].Title) != models.MaxRowTitleLength {
		t.Errorf("row title should be truncated to %d, got %d", models.MaxRowTitleLength, len(msg.Sections[0].Rows[0].Title))
	}
	if len(msg.Sections[0].Rows[0].Description) != models.MaxRowDescriptionLength {
		t.Errorf("row description should be truncated to %d, got %d", models.MaxRowDescriptionLength, len(msg.Sections[0].Rows[0].Description))
	}
}

func TestRenderMenuTruncatesOnRuneBoundary(t *testing.T) {
	def := GeneralFlow()

	// 1 ASCII byte + 12 two-byte runes = 25 bytes; a byte slice at the
	// 24-byte title limit would split the last rune.
	title := "x" + strings.Repeat("á", 12)
	tmpl := &models.MenuTemplate{
		Body:   "x" + strings.Repeat("ñ", models.MaxMenuBodyLength),
		Button: "Opciones",
		Sections: []models.MenuSection{
			{Rows: []models.MenuRow{{ID: "INFO_HOURS", Title: title, Description: strings.Repeat("é", models.MaxRowDescriptionLength)}}},
		},
	}

	msg := RenderMenu(def, tmpl, nil)
	if !utf8.ValidString(msg.Body) {
		t.Error("truncated body must remain valid UTF-8")
	}
	if len(msg.Body) > models.MaxMenuBodyLength {
		t.Errorf("body over limit: %d bytes", len(msg.Body))
	}
	row := msg.Sections[0].Rows[0]
	if !utf8.ValidString(row.Title) || !utf8.ValidString(row.Description) {
		t.Errorf("truncated row fields must remain valid UTF-8: %q / %q", row.Title, row.Description)
	}
	if len(row.Title) > models.MaxRowTitleLength || len(row.Description) > models.MaxRowDescriptionLength {
		t.Errorf("row fields over limit: title %d, description %d", len(row.Title), len(row.Description))
	}
}

func TestRenderMenuPreservesRowOrder(t *testing.T) {
	def := GeneralFlow()
	msg := RenderMenu(def, &def.MainMenu, nil)

	var ids []string
	for _, sec := range msg.Sections {
		for _, row := range sec.Rows {
			ids = append(ids, row.ID)
		}
	}
	want := []string{"INFO_HOURS", "INFO_LOCATION", "HANDOFF", "MAIN_MENU"}
	if len(ids) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("row %d: expected %s, got %s", i, want[i], ids[i])
		}
	}
}

func TestRenderText(t *testing.T) {
	def := GeneralFlow()
	got := RenderText(def, "Gracias por escribir a {{brandName}}.", map[string]string{"brandName": "Acme"})
	if got != "Gracias por escribir a Acme." {
		t.Errorf("unexpected rendered text: %q", got)
	}
}
