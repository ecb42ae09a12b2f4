package flow

import (
	"log/slog"
	"time"

	"github.com/flowdesk/flowdesk/internal/models"
)

// GeneralFlow returns the built-in general customer-service flow: a
// single menu with static information rows and agent handoff, driven
// entirely by the generic rule table.
func GeneralFlow() *models.FlowDefinition {
	return &models.FlowDefinition{
		ID:      "flow_general",
		Name:    "Atención general",
		Version: "1.0.0",
		States:  []models.StateType{models.StateMainMenu},
		Actions: []models.ActionID{
			models.ActionHandoff,
			models.ActionMainMenu,
			"INFO_HOURS",
			"INFO_LOCATION",
		},
		MainMenu: models.MenuTemplate{
			Body:   "👋 ¡Hola! Bienvenido a {{brandName}}. ¿En qué podemos ayudarte?",
			Button: "Ver opciones",
			Sections: []models.MenuSection{
				{
					Title: "Información",
					Rows: []models.MenuRow{
						{ID: "INFO_HOURS", Title: "Horarios", Description: "Horarios de atención"},
						{ID: "INFO_LOCATION", Title: "Ubicación", Description: "Dónde encontrarnos"},
					},
				},
				{
					Title: "Atención",
					Rows: []models.MenuRow{
						{ID: models.ActionHandoff, Title: "Hablar con un agente", Description: "Te atiende una persona"},
						{ID: models.ActionMainMenu, Title: "Menú principal"},
					},
				},
			},
		},
		Config: models.FlowConfig{
			SessionTTL: 24 * time.Hour,
			Replies: map[models.ActionID]string{
				"INFO_HOURS":    "🕘 Atendemos de lunes a viernes, 9:00 a 18:00.",
				"INFO_LOCATION": "📍 Encuéntranos en nuestra sucursal principal. Escribe a un agente para indicaciones.",
			},
			HandoffConfirmation: "🙋 Gracias, un agente de {{brandName}} te atenderá en breve.",
			TemplateDefaults:    map[string]string{"brandName": "nuestro equipo"},
		},
	}
}

// ClinicFlow returns the built-in podiatry clinic flow: ERP-backed price
// and branch lookups, patient identification by document number, and
// payment/purchase history, handled by the legacy clinic strategy.
func ClinicFlow() *models.FlowDefinition {
	return &models.FlowDefinition{
		ID:      "flow_podopie",
		Name:    "Clínica Podopié",
		Version: "2.1.0",
		States: []models.StateType{
			models.StateMainMenu,
			models.StateAskIdentifier,
			models.StatePatientMenu,
		},
		Actions: []models.ActionID{
			models.ActionHandoff,
			models.ActionMainMenu,
			ActionInfoPrices,
			ActionInfoBranches,
			ActionPatientEntry,
			ActionPatientPayments,
			ActionPatientPurchases,
		},
		MainMenu: models.MenuTemplate{
			Body:   "🦶 Bienvenido a {{brandName}}. Selecciona una opción:",
			Button: "Ver opciones",
			Sections: []models.MenuSection{
				{
					Title: "Información",
					Rows: []models.MenuRow{
						{ID: ActionInfoPrices, Title: "Precios", Description: "Lista de servicios y precios"},
						{ID: ActionInfoBranches, Title: "Sucursales", Description: "Nuestras ubicaciones"},
					},
				},
				{
					Title: "Pacientes",
					Rows: []models.MenuRow{
						{ID: ActionPatientEntry, Title: "Soy paciente", Description: "Consultas con tu cédula"},
						{ID: models.ActionHandoff, Title: "Hablar con un agente"},
					},
				},
			},
		},
		PatientMenu: &models.MenuTemplate{
			Body:   "Hola {{patientName}}, ¿qué deseas consultar?",
			Button: "Ver opciones",
			Sections: []models.MenuSection{
				{
					Rows: []models.MenuRow{
						{ID: ActionPatientPayments, Title: "Pagos pendientes"},
						{ID: ActionPatientPurchases, Title: "Compras recientes"},
						{ID: models.ActionMainMenu, Title: "Menú principal"},
						{ID: models.ActionHandoff, Title: "Hablar con un agente"},
					},
				},
			},
		},
		UseLegacyHandler: true,
		Config: models.FlowConfig{
			RequiresOdoo: true,
			MaxListRows:  8,
			SessionTTL:   12 * time.Hour,
			TextStates:   []models.StateType{models.StateAskIdentifier},
			StateMenus: map[models.StateType]models.MenuName{
				models.StateMainMenu:    models.MenuMain,
				models.StatePatientMenu: models.MenuPatient,
			},
			PricesFallback:        "💲 Consulta nuestros precios con un agente; en este momento no podemos mostrar la lista.",
			BranchesFallback:      "📍 En este momento no podemos mostrar las sucursales. Un agente puede ayudarte.",
			HandoffConfirmation:   "🙋 Gracias, un agente de {{brandName}} te atenderá en breve.",
			AskIdentifierPrompt:   "Por favor escribe tu número de cédula (solo números).",
			UnknownPatient:        "No encontramos un paciente con esa cédula. Verifica el número e intenta de nuevo.",
			PatientLookupFallback: "⚠️ No pudimos consultar tus datos en este momento. Intenta más tarde o habla con un agente.",
			TemplateDefaults: map[string]string{
				"brandName":   "Podopié",
				"patientName": "paciente",
			},
		},
	}
}

// RegisterBuiltins registers the built-in flow definitions and their
// handler strategies. Called once at startup.
func RegisterBuiltins(registry *Registry, dispatcher *Dispatcher) error {
	for _, def := range []*models.FlowDefinition{GeneralFlow(), ClinicFlow()} {
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	dispatcher.RegisterHandler("flow_podopie", NewClinicHandler())
	slog.Debug("Built-in flows registered")
	return nil
}
