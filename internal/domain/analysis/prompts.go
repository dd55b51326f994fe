package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rxcheck/rxcheck/internal/domain/profile"
)

const notProvided = "Not provided"

const prescriptionPrompt = `You are an AI medical assistant named RxCheck. Your task is to analyze a user's prescription and lab report against their health profile.
Provide a clear, easy-to-understand summary.
Identify potential conflicts, mismatches, or concerns.
Classify the overall situation using one of these three emojis at the very beginning of your report: ✅ Safe, ⚠️ Needs Review, or ❌ Critical Conflict.
Here is the data:
- User Profile: %s
- Prescription: %s
- Lab Report: %s

Analyze the data and generate the report.`

const symptomPrompt = `You are an advanced AI medical assistant named RxCheck. Your task is to provide a preliminary analysis of a user's symptoms based on their complete health profile and past medical history.
**IMPORTANT**: At the very beginning of your response, you MUST classify the situation's severity with one of these three emojis:
- ✅ Safe: No immediate concerns noted.
- ⚠️ Needs Review: Potential concerns that warrant monitoring or a non-urgent doctor's visit.
- ❌ Critical Conflict: A serious potential issue that suggests prompt medical consultation.
After the emoji, provide your analysis. Start with a clear, bold disclaimer: "**Disclaimer: This is not a medical diagnosis. Consult a licensed physician for any health concerns.**"
Analyze the following information:
- User's Health Profile: %s
- User's Current Symptoms: "%s"
- User's Past Analysis History (Prescriptions & Reports): %s`

const summaryPrompt = `Summarize the following conversation between an AI medical assistant and a user. Identify the key symptoms discussed and the user's main concerns. Transcript: "%s"`

// profileView is the profile as shown to the model. Missing numeric fields
// render as "Not provided"; the phone number is never sent.
type profileView struct {
	Age           interface{} `json:"age"`
	DateOfBirth   string      `json:"dateOfBirth,omitempty"`
	Weight        interface{} `json:"weight"`
	Height        interface{} `json:"height"`
	Conditions    string      `json:"conditions"`
	Allergies     string      `json:"allergies"`
	FamilyHistory string      `json:"familyHistory"`
	CallConsent   bool        `json:"callConsent"`
}

type reportView struct {
	Prescription string    `json:"prescription"`
	LabReport    string    `json:"labReport"`
	Report       string    `json:"report"`
	CreatedAt    time.Time `json:"createdAt"`
}

func orNotProvided[T int | float64](v T) interface{} {
	if v <= 0 {
		return notProvided
	}
	return v
}

func textOrNotProvided(s string) string {
	if strings.TrimSpace(s) == "" {
		return notProvided
	}
	return s
}

func renderProfile(p *profile.Profile) string {
	if p == nil {
		p = &profile.Profile{}
	}
	v := profileView{
		Age:           orNotProvided(p.Age),
		DateOfBirth:   p.DateOfBirth,
		Weight:        orNotProvided(p.Weight),
		Height:        orNotProvided(p.Height),
		Conditions:    textOrNotProvided(p.Conditions),
		Allergies:     textOrNotProvided(p.Allergies),
		FamilyHistory: textOrNotProvided(p.FamilyHistory),
		CallConsent:   p.CallConsent,
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func renderHistory(reports []*profile.Report) string {
	views := make([]reportView, 0, len(reports))
	for _, r := range reports {
		views = append(views, reportView{
			Prescription: r.Prescription,
			LabReport:    r.LabReport,
			Report:       r.Analysis,
			CreatedAt:    r.CreatedAt,
		})
	}
	b, _ := json.Marshal(views)
	return string(b)
}

// BuildPrescriptionPrompt composes the prescription/lab analysis prompt.
// Empty prescription or lab text is rendered as "Not provided".
func BuildPrescriptionPrompt(p *profile.Profile, prescription, labReport string) string {
	return fmt.Sprintf(prescriptionPrompt,
		renderProfile(p), textOrNotProvided(prescription), textOrNotProvided(labReport))
}

// BuildSymptomPrompt composes the symptom analysis prompt with the user's
// report history, newest first.
func BuildSymptomPrompt(p *profile.Profile, symptoms string, history []*profile.Report) string {
	return fmt.Sprintf(symptomPrompt, renderProfile(p), symptoms, renderHistory(history))
}

// BuildSummaryPrompt composes the call transcript summary prompt.
func BuildSummaryPrompt(transcript string) string {
	return fmt.Sprintf(summaryPrompt, transcript)
}
