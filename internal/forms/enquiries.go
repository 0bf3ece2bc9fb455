package forms

import (
	"fmt"

	"clinic-forms/internal/common/validation"
)

var ContactReasons = []string{"General", "Team", "Partnership", "Support", "Feedback"}

var Contact = register(&Definition{
	Name:     "contact",
	Title:    "Contact Enquiry",
	Category: "contact",
	Schema: validation.NewSchema("contact",
		validation.PersonName("fullName").Labeled("Full Name").IsRequired().Len(2, 100),
		validation.Email("email").IsRequired(),
		validation.Phone("phone").IsRequired(),
		validation.Enum("reason", ContactReasons...).Labeled("Reason").IsRequired().
			Msg(validation.ConstraintEnum, "Please select a reason for contacting us"),
		validation.String("message").Labeled("Message").Len(0, 1000),
	),
	Sections: []Section{
		{Title: "Contact Details", Fields: []string{"fullName", "email", "phone"}},
		{Title: "Enquiry", Fields: []string{"reason", "message"}},
	},
	Subject: func(d validation.Record) string {
		return fmt.Sprintf("New Contact Enquiry: %s (%s)", str(d, "fullName"), str(d, "reason"))
	},
})

var Newsletter = register(&Definition{
	Name:     "newsletter",
	Title:    "Newsletter Subscription",
	Category: "newsletter",
	Schema: validation.NewSchema("newsletter",
		validation.Email("email").IsRequired(),
		validation.PersonName("fullName").Labeled("Name").Len(2, 100),
	),
	Sections: []Section{
		{Title: "Subscriber", Fields: []string{"email", "fullName"}},
	},
	Subject: func(d validation.Record) string {
		return "New Newsletter Subscriber: " + str(d, "email")
	},
})

var (
	Genders           = []string{"Male", "Female", "Other"}
	ConsultationTypes = []string{"Online", "In-Clinic", "Home Visit"}
	Specialties       = []string{"General Physician", "Cardiology", "Dermatology", "Pediatrics", "Gynecology", "Psychiatry", "Orthopedics"}
	TimeSlots         = []string{"Morning", "Afternoon", "Evening"}
)

var Consultation = register(&Definition{
	Name:     "consultation",
	Title:    "Consultation Booking",
	Category: "consultations",
	Urgent:   true,
	Schema: validation.NewSchema("consultation",
		validation.PersonName("fullName").Labeled("Patient Name").IsRequired().Len(2, 100),
		validation.Email("email").IsRequired(),
		validation.Phone("phone").IsRequired(),
		validation.Number("age").Labeled("Age").IsRequired().WholeNumber().Between(1, 120),
		validation.Enum("gender", Genders...).Labeled("Gender").IsRequired(),
		validation.Enum("consultationType", ConsultationTypes...).Labeled("Consultation Type").IsRequired(),
		validation.Enum("specialty", Specialties...).Labeled("Specialty").IsRequired(),
		validation.Date("preferredDate").Labeled("Preferred Date").IsRequired().NotInPast(),
		validation.Enum("preferredTime", TimeSlots...).Labeled("Preferred Time"),
		validation.String("symptoms").Labeled("Symptoms").Len(0, 2000),
		validation.String("address").Labeled("Address").Len(5, 300),
	).WithRule(validation.CrossFieldRule{
		Field: "address",
		Check: func(d validation.Record) bool {
			if str(d, "consultationType") != "Home Visit" {
				return true
			}
			return str(d, "address") != ""
		},
		Message: "Address is required for home visits",
	}),
	Sections: []Section{
		{Title: "Patient", Fields: []string{"fullName", "email", "phone", "age", "gender"}},
		{Title: "Appointment", Fields: []string{"consultationType", "specialty", "preferredDate", "preferredTime", "address"}},
		{Title: "Symptoms", Fields: []string{"symptoms"}},
	},
	Subject: func(d validation.Record) string {
		return fmt.Sprintf("New Consultation Booking: %s (%s, %s)",
			str(d, "fullName"), str(d, "specialty"), str(d, "consultationType"))
	},
})
