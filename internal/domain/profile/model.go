package profile

import (
	"strings"
	"time"
)

// DateLayout is the format of Profile.DateOfBirth.
const DateLayout = "2006-01-02"

// Profile is the per-user health profile stored at profiles/{uid}.
type Profile struct {
	UserID        string    `json:"userId" firestore:"-"`
	DateOfBirth   string    `json:"dateOfBirth,omitempty" firestore:"dateOfBirth,omitempty"`
	Age           int       `json:"age,omitempty" firestore:"age,omitempty"`
	Weight        float64   `json:"weight,omitempty" firestore:"weight,omitempty"`
	Height        float64   `json:"height,omitempty" firestore:"height,omitempty"`
	Conditions    string    `json:"conditions,omitempty" firestore:"conditions,omitempty"`
	Allergies     string    `json:"allergies,omitempty" firestore:"allergies,omitempty"`
	FamilyHistory string    `json:"familyHistory,omitempty" firestore:"familyHistory,omitempty"`
	PhoneNumber   string    `json:"phoneNumber,omitempty" firestore:"phoneNumber,omitempty"`
	CallConsent   bool      `json:"callConsent" firestore:"callConsent"`
	LastUpdated   time.Time `json:"lastUpdated" firestore:"lastUpdated"`
}

// ProfileUpdate is a merge-save request. Nil fields are left untouched.
type ProfileUpdate struct {
	DateOfBirth   *string  `json:"dateOfBirth"`
	Age           *int     `json:"age"`
	Weight        *float64 `json:"weight"`
	Height        *float64 `json:"height"`
	Conditions    *string  `json:"conditions"`
	Allergies     *string  `json:"allergies"`
	FamilyHistory *string  `json:"familyHistory"`
	PhoneNumber   *string  `json:"phoneNumber"`
	CallConsent   *bool    `json:"callConsent"`
}

// Empty reports whether the update sets no field.
func (u *ProfileUpdate) Empty() bool {
	return len(u.Fields()) == 0
}

// Fields returns the set fields keyed by their stored (camelCase) name.
func (u *ProfileUpdate) Fields() map[string]interface{} {
	f := map[string]interface{}{}
	if u.DateOfBirth != nil {
		f["dateOfBirth"] = *u.DateOfBirth
	}
	if u.Age != nil {
		f["age"] = *u.Age
	}
	if u.Weight != nil {
		f["weight"] = *u.Weight
	}
	if u.Height != nil {
		f["height"] = *u.Height
	}
	if u.Conditions != nil {
		f["conditions"] = *u.Conditions
	}
	if u.Allergies != nil {
		f["allergies"] = *u.Allergies
	}
	if u.FamilyHistory != nil {
		f["familyHistory"] = *u.FamilyHistory
	}
	if u.PhoneNumber != nil {
		f["phoneNumber"] = *u.PhoneNumber
	}
	if u.CallConsent != nil {
		f["callConsent"] = *u.CallConsent
	}
	return f
}

// Apply merges the set fields of u into p.
func (u *ProfileUpdate) Apply(p *Profile) {
	if u.DateOfBirth != nil {
		p.DateOfBirth = *u.DateOfBirth
	}
	if u.Age != nil {
		p.Age = *u.Age
	}
	if u.Weight != nil {
		p.Weight = *u.Weight
	}
	if u.Height != nil {
		p.Height = *u.Height
	}
	if u.Conditions != nil {
		p.Conditions = *u.Conditions
	}
	if u.Allergies != nil {
		p.Allergies = *u.Allergies
	}
	if u.FamilyHistory != nil {
		p.FamilyHistory = *u.FamilyHistory
	}
	if u.PhoneNumber != nil {
		p.PhoneNumber = *u.PhoneNumber
	}
	if u.CallConsent != nil {
		p.CallConsent = *u.CallConsent
	}
}

// AgeFromDOB returns the age in whole years at now for a DateLayout birth
// date. ok is false when dob is empty, malformed or in the future.
func AgeFromDOB(dob string, now time.Time) (age int, ok bool) {
	dob = strings.TrimSpace(dob)
	if dob == "" {
		return 0, false
	}
	born, err := time.Parse(DateLayout, dob)
	if err != nil || born.After(now) {
		return 0, false
	}
	age = now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	return age, true
}

// Report is one stored analysis, at profiles/{uid}/reports/{id}.
type Report struct {
	ID           string    `json:"id" firestore:"-"`
	UserID       string    `json:"userId" firestore:"-"`
	Prescription string    `json:"prescription" firestore:"prescription"`
	LabReport    string    `json:"labReport" firestore:"labReport"`
	Analysis     string    `json:"report" firestore:"report"`
	CreatedAt    time.Time `json:"createdAt" firestore:"createdAt"`
}

// CallLog records a finished voice call, at profiles/{uid}/call_logs/{callId}.
type CallLog struct {
	UserID      string     `json:"userId" firestore:"-"`
	CallID      string     `json:"callId" firestore:"callId"`
	Transcript  string     `json:"transcript" firestore:"transcript"`
	Summary     string     `json:"summary" firestore:"summary"`
	CallEndTime *time.Time `json:"callEndTime,omitempty" firestore:"callEndTime,omitempty"`
	DurationMs  int64      `json:"duration" firestore:"duration"`
}
