package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sweetebin/agent-hippocrates/internal/domain"
	"github.com/sweetebin/agent-hippocrates/internal/llm"
	"github.com/sweetebin/agent-hippocrates/internal/store"
)

// Models names the model identifier used by each agent role.
type Models struct {
	Intake     string
	Specialist string
	Vision     string
}

const intakeInstructions = `You are a medical assistant performing patient intake.
Collect the patient's symptoms, vitals and relevant history, and record every
structured fact with the update_medical_record tool using a short English field
name (for example blood_pressure, allergies, weight). Review recorded data with
get_medical_history before asking again. When enough information is collected
for a clinical assessment, transfer the patient to the doctor.`

const specialistInstructions = `You are the attending doctor. Review the patient
data on file, focus on the presented symptoms, and give a preliminary
assessment and recommendations. Use a personal approach. Never refer the
patient to another doctor; you are the doctor.`

const interpreterInstructions = `You interpret user-submitted medical images.
Describe the clinically relevant content of the image as plain text for
further processing.`

// NewRoster builds the agent roster bound to one user context. The
// capability executors close over the store and the context snapshot,
// so every tool call a model makes operates on the owning user's data.
func NewRoster(st store.Store, userCtx domain.UserContext, models Models) *Roster {
	r := &Roster{}

	r.Intake = &Agent{
		Name:         NameMedicalAssistant,
		Instructions: intakeInstructions,
		Model:        models.Intake,
		Tools: []ToolDef{
			updateMedicalRecordTool(st, userCtx),
			getMedicalHistoryTool(st, userCtx),
			transferTool("transfer_to_doctor",
				"Transfer the conversation to the doctor for a clinical assessment.",
				NameDoctor),
		},
	}

	r.Specialist = &Agent{
		Name:         NameDoctor,
		Instructions: specialistInstructions,
		Model:        models.Specialist,
		Tools: []ToolDef{
			updateMedicalRecordTool(st, userCtx),
			getMedicalHistoryTool(st, userCtx),
		},
	}

	r.Interpreter = &Agent{
		Name:         NameImageInterpreter,
		Instructions: interpreterInstructions,
		Model:        models.Vision,
	}

	r.byName = map[string]*Agent{
		r.Intake.Name:      r.Intake,
		r.Specialist.Name:  r.Specialist,
		r.Interpreter.Name: r.Interpreter,
	}
	return r
}

func updateMedicalRecordTool(st store.Store, userCtx domain.UserContext) ToolDef {
	return ToolDef{
		Spec: toolSpec("update_medical_record",
			"Update or create one field of the patient's medical record.",
			map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"field": map[string]interface{}{
						"type":        "string",
						"description": "Short English field name, e.g. blood_pressure, allergies",
					},
					"value": map[string]interface{}{
						"type":        "string",
						"description": "Value to store for the field",
					},
				},
				"required": []string{"field", "value"},
			}),
		Execute: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			var params struct {
				Field string `json:"field"`
				Value string `json:"value"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			if params.Field == "" {
				return nil, fmt.Errorf("field is required")
			}
			recordID, err := st.UpsertMedicalRecord(ctx, userCtx.UserID, params.Field, params.Value)
			if err != nil {
				return nil, fmt.Errorf("failed to upsert medical record: %w", err)
			}
			return json.Marshal(map[string]string{"status": "success", "record_id": recordID})
		},
	}
}

func getMedicalHistoryTool(st store.Store, userCtx domain.UserContext) ToolDef {
	return ToolDef{
		Spec: toolSpec("get_medical_history",
			"Get all recorded medical record fields for the patient.",
			map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			}),
		Execute: func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			records, err := st.GetMedicalHistory(ctx, userCtx.UserID)
			if err != nil {
				return nil, fmt.Errorf("failed to get medical history: %w", err)
			}
			type entry struct {
				Field     string `json:"field"`
				Value     string `json:"value"`
				CreatedAt string `json:"created_at"`
			}
			history := make([]entry, 0, len(records))
			for _, rec := range records {
				history = append(history, entry{
					Field:     rec.Field,
					Value:     rec.Value,
					CreatedAt: rec.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
				})
			}
			return json.Marshal(map[string]interface{}{"medical_history": history})
		},
	}
}

func transferTool(name, description, target string) ToolDef {
	return ToolDef{
		Spec: toolSpec(name, description, map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"reason": map[string]interface{}{
					"type":        "string",
					"description": "Optional human-readable reason for the transfer",
				},
			},
		}),
		TransferTo: target,
	}
}

func toolSpec(name, description string, parameters interface{}) llm.Tool {
	return llm.Tool{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}
