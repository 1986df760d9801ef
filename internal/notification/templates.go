package notification

import (
	"fmt"
	"strings"

	"passport-tracker/internal/models"
)

const signature = "\n\nThank you!\nPassport Services"

// DefaultTemplates holds the title and body for every lifecycle event.
var DefaultTemplates = map[models.EventType]models.NotificationTemplate{
	models.EventApplicationSubmitted: {
		Title: "Application Submitted Successfully",
		Body: "Dear {{fullName}},\n\nYour passport application has been submitted successfully.\n\n" +
			"Application Number: {{applicationNumber}}\nType: {{category}}\n" +
			"Expected Processing Time: {{predictedDays}} days\nExpected Completion: {{expectedCompletionDate}}\n\n" +
			"You can track your application status anytime." + signature,
	},
	models.EventDocumentsVerified: {
		Title: "Documents Verified",
		Body: "Dear {{fullName}},\n\nYour documents have been verified successfully.\n\n" +
			"Application Number: {{applicationNumber}}\nStatus: Document Verification Completed\n" +
			"Next Step: Police Verification" + signature,
	},
	models.EventPoliceVerificationStarted: {
		Title: "Police Verification Started",
		Body: "Dear {{fullName}},\n\nPolice verification for your application has been initiated.\n\n" +
			"Application Number: {{applicationNumber}}\n\n" +
			"A police officer will visit your address for verification. Please keep your documents ready." + signature,
	},
	models.EventPoliceVerificationCompleted: {
		Title: "Police Verification Completed",
		Body: "Dear {{fullName}},\n\nPolice verification has been completed successfully.\n\n" +
			"Application Number: {{applicationNumber}}\nStatus: Police Verification Completed\n" +
			"Next Step: Final Approval" + signature,
	},
	models.EventApplicationApproved: {
		Title: "Application Approved!",
		Body: "Dear {{fullName}},\n\nCongratulations! Your passport application has been approved.\n\n" +
			"Application Number: {{applicationNumber}}\nStatus: Approved\nNext Step: Printing" + signature,
	},
	models.EventApplicationRejected: {
		Title: "Application Rejected",
		Body: "Dear {{fullName}},\n\nWe regret to inform you that your passport application has been rejected.\n\n" +
			"Application Number: {{applicationNumber}}\nStatus: Rejected\n\nReason: {{reason}}\n\n" +
			"You may reapply after addressing the issues." + signature,
	},
	models.EventPrintingStarted: {
		Title: "Passport Printing Started",
		Body: "Dear {{fullName}},\n\nYour passport is now being printed.\n\n" +
			"Application Number: {{applicationNumber}}\nStatus: Printing in Progress\n\n" +
			"Your passport will be dispatched soon." + signature,
	},
	models.EventPassportDispatched: {
		Title: "Passport Dispatched",
		Body: "Dear {{fullName}},\n\nGreat news! Your passport has been dispatched.\n\n" +
			"Application Number: {{applicationNumber}}\nStatus: Dispatched\n\n" +
			"Expected Delivery: 3-5 business days" + signature,
	},
	models.EventPassportDelivered: {
		Title: "Passport Delivered",
		Body: "Dear {{fullName}},\n\nCongratulations! Your passport has been delivered successfully.\n\n" +
			"Application Number: {{applicationNumber}}\nStatus: Delivered\nDelivery Date: {{deliveryDate}}" + signature,
	},
}

// templateData is the placeholder set available to every template.
func templateData(app *models.Application, reason string) map[string]interface{} {
	data := map[string]interface{}{
		"fullName":               app.FullName,
		"applicationNumber":      app.ApplicationNumber,
		"category":               app.Category,
		"status":                 app.CurrentStatus,
		"predictedDays":          app.PredictedCompletionDays,
		"expectedCompletionDate": app.ExpectedCompletionDate.Format("2006-01-02"),
		"reason":                 reason,
	}
	if app.ActualCompletionDate != nil {
		data["deliveryDate"] = app.ActualCompletionDate.Format("2006-01-02")
	}
	return data
}

// Render replaces {{key}} placeholders with data values in one pass over
// tmpl. Placeholders without a value are removed. Substituted values are
// copied as-is and never scanned for placeholders themselves.
func Render(tmpl string, data map[string]interface{}) string {
	var b strings.Builder
	b.Grow(len(tmpl))

	rest := tmpl
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(rest[start+2:], "}}")
		if end == -1 {
			break
		}
		b.WriteString(rest[:start])
		if v := data[rest[start+2:start+2+end]]; v != nil {
			b.WriteString(fmt.Sprintf("%v", v))
		}
		rest = rest[start+2+end+2:]
	}
	b.WriteString(rest)
	return b.String()
}
