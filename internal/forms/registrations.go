package forms

import (
	"fmt"
	"regexp"
	"strings"

	"clinic-forms/internal/common/validation"
)

var (
	Weekdays    = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
	LabServices = []string{"Blood Tests", "Urine Tests", "Radiology", "Pathology", "Microbiology", "COVID-19 Testing", "ECG"}

	licensePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9/\-]{3,29}$`)
	pmdcPattern    = regexp.MustCompile(`^[0-9]{3,8}-?[A-Za-z]?$`)
)

// upper normalizes registration numbers so staff see one spelling.
func upper(v interface{}) interface{} {
	if s, ok := v.(string); ok {
		return strings.ToUpper(strings.TrimSpace(s))
	}
	return v
}

var LabRegistration = register(&Definition{
	Name:     "lab-registration",
	Title:    "Lab Registration",
	Category: "labs",
	IDPrefix: "LAB",
	Schema: validation.NewSchema("lab-registration",
		validation.String("labName").Labeled("Lab Name").IsRequired().Len(2, 150),
		validation.PersonName("ownerName").Labeled("Owner Name").IsRequired().Len(2, 100),
		validation.Email("email").IsRequired(),
		validation.Phone("phone").IsRequired(),
		validation.String("city").Labeled("City").IsRequired().Len(2, 80),
		validation.String("address").Labeled("Address").IsRequired().Len(5, 300),
		validation.String("licenseNumber").Labeled("License Number").IsRequired().
			Matches(licensePattern, "License number may only contain letters, digits, '/' and '-'").Then(upper),
		validation.Date("licenseExpiry").Labeled("License Expiry").IsRequired().NotInPast().
			Msg(validation.ConstraintPast, "License has expired"),
		validation.StringArray("servicesOffered").Labeled("Services Offered").IsRequired().Items(LabServices...),
		validation.Boolean("homeSampling").Labeled("Home Sampling"),
		validation.Boolean("consent").Labeled("Consent").IsRequired().
			MustBeTrue("You must confirm the information is accurate"),
	),
	Sections: []Section{
		{Title: "Laboratory", Fields: []string{"labName", "city", "address"}},
		{Title: "Owner", Fields: []string{"ownerName", "email", "phone"}},
		{Title: "License", Fields: []string{"licenseNumber", "licenseExpiry"}},
		{Title: "Services", Fields: []string{"servicesOffered", "homeSampling"}},
		{Title: "Declaration", Fields: []string{"consent"}},
	},
	Subject: func(d validation.Record) string {
		return fmt.Sprintf("New Lab Registration: %s (%s)", str(d, "labName"), str(d, "city"))
	},
})

var DoctorRegistration = register(&Definition{
	Name:     "doctor-registration",
	Title:    "Doctor Registration",
	Category: "doctors",
	IDPrefix: "DR",
	Urgent:   true,
	Schema: validation.NewSchema("doctor-registration",
		validation.PersonName("fullName").Labeled("Full Name").IsRequired().Len(2, 100),
		validation.Email("email").IsRequired(),
		validation.Phone("phone").IsRequired(),
		validation.String("specialization").Labeled("Specialization").IsRequired().Len(2, 100),
		validation.String("pmdcNumber").Labeled("PMDC Number").IsRequired().
			Matches(pmdcPattern, "PMDC number must be 3 to 8 digits, optionally followed by a letter").Then(upper),
		validation.Date("pmdcExpiry").Labeled("PMDC Expiry").IsRequired().NotInPast().
			Msg(validation.ConstraintPast, "PMDC registration has expired"),
		validation.Number("experienceYears").Labeled("Years of Experience").IsRequired().WholeNumber().Between(0, 60),
		validation.String("qualification").Labeled("Qualification").IsRequired().Len(2, 200),
		validation.String("city").Labeled("City").IsRequired().Len(2, 80),
		validation.String("clinicAddress").Labeled("Clinic Address").Len(5, 300),
		validation.StringArray("availableDays").Labeled("Available Days").IsRequired().Items(Weekdays...),
		validation.Boolean("offersOnlineConsultation").Labeled("Offers Online Consultation"),
		validation.Number("consultationFee").Labeled("Consultation Fee (PKR)").Between(0, 1000000),
		validation.Boolean("consent").Labeled("Consent").IsRequired().
			MustBeTrue("You must confirm the information is accurate"),
		validation.File("frontPhoto").Labeled("Front Photo").IsRequired().
			MaxSize(validation.PhotoMaxSize).Accept(validation.ImageTypes...),
		validation.File("degreePdf").Labeled("Degree").IsRequired().
			MaxSize(validation.DocMaxSize).Accept(validation.DocumentTypes...),
		validation.File("pmdcCertificatePdf").Labeled("PMDC Certificate").IsRequired().
			MaxSize(validation.DocMaxSize).Accept(validation.DocumentTypes...),
	).WithRule(validation.CrossFieldRule{
		Field: "consultationFee",
		Check: func(d validation.Record) bool {
			if online, _ := d["offersOnlineConsultation"].(bool); !online {
				return true
			}
			_, ok := d["consultationFee"]
			return ok
		},
		Message: "Consultation fee is required when offering online consultations",
	}),
	Sections: []Section{
		{Title: "Personal Information", Fields: []string{"fullName", "email", "phone", "city"}},
		{Title: "Professional Details", Fields: []string{"specialization", "qualification", "experienceYears", "pmdcNumber", "pmdcExpiry"}},
		{Title: "Practice", Fields: []string{"clinicAddress", "availableDays", "offersOnlineConsultation", "consultationFee"}},
		{Title: "Documents", Fields: []string{"frontPhoto", "degreePdf", "pmdcCertificatePdf"}},
		{Title: "Declaration", Fields: []string{"consent"}},
	},
	Subject: func(d validation.Record) string {
		return fmt.Sprintf("New Doctor Registration: Dr. %s (%s)", str(d, "fullName"), str(d, "specialization"))
	},
})

var (
	Programs     = []string{"Corporate Wellness", "Diabetes Care", "Maternal Health", "Senior Care"}
	PackageTiers = []string{"Basic", "Standard", "Premium"}
)

var ProgramApplication = register(&Definition{
	Name:     "program-application",
	Title:    "Program Application",
	Category: "programs",
	IDPrefix: "PA",
	Schema: validation.NewSchema("program-application",
		validation.Enum("programName", Programs...).Labeled("Program").IsRequired(),
		validation.Enum("packageTier", PackageTiers...).Labeled("Package").IsRequired(),
		validation.String("organizationName").Labeled("Organization").Len(2, 150),
		validation.PersonName("fullName").Labeled("Contact Person").IsRequired().Len(2, 100),
		validation.Email("email").IsRequired(),
		validation.Phone("phone").IsRequired(),
		validation.Number("participants").Labeled("Participants").IsRequired().WholeNumber().Between(1, 10000),
		validation.Date("startDate").Labeled("Preferred Start Date").NotInPast(),
		validation.String("notes").Labeled("Notes").Len(0, 2000),
		validation.Enum("consent", "yes", "no").Labeled("Consent").IsRequired().
			MustEqual("yes", "You must agree to be contacted about this program"),
	),
	Sections: []Section{
		{Title: "Program", Fields: []string{"programName", "packageTier", "participants", "startDate"}},
		{Title: "Applicant", Fields: []string{"fullName", "organizationName", "email", "phone"}},
		{Title: "Notes", Fields: []string{"notes"}},
		{Title: "Declaration", Fields: []string{"consent"}},
	},
	Subject: func(d validation.Record) string {
		return fmt.Sprintf("New Program Application: %s (%s, %s)",
			str(d, "fullName"), str(d, "programName"), str(d, "packageTier"))
	},
})
