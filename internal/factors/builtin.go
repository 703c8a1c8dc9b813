package factors

// DefaultCategories returns the built-in factor catalog.
func DefaultCategories() []Category {
	return []Category{
		{
			Name: "Patient",
			Factors: []Definition{
				{Key: "patient_age", Name: "Patient Age", DataType: TypeNumber},
				{Key: "patient_gender", Name: "Patient Gender", DataType: TypeString, AllowedValues: []string{"MALE", "FEMALE"}},
				{Key: "patient_nationality", Name: "Patient Nationality", DataType: TypeString},
				{Key: "age_group", Name: "Age Group", DataType: TypeString, AllowedValues: []string{"NEWBORN", "CHILD", "ADULT", "SENIOR"}},
			},
		},
		{
			Name: "Member & Policy",
			Factors: []Definition{
				{Key: "member_class", Name: "Member Class", DataType: TypeString, AllowedValues: []string{"VIP", "A", "B", "C"}},
				{Key: "policy_type", Name: "Policy Type", DataType: TypeString, AllowedValues: []string{"INDIVIDUAL", "FAMILY", "CORPORATE"}},
				{Key: "relationship", Name: "Relationship to Principal", DataType: TypeString, AllowedValues: []string{"PRINCIPAL", "SPOUSE", "CHILD", "PARENT"}},
				{Key: "policy_year", Name: "Policy Year", DataType: TypeNumber},
			},
		},
		{
			Name: "Provider",
			Factors: []Definition{
				{Key: "provider_type", Name: "Provider Type", DataType: TypeString, AllowedValues: []string{"HOSPITAL", "CLINIC", "PHARMACY", "LABORATORY", "RADIOLOGY"}},
				{Key: "provider_region", Name: "Provider Region", DataType: TypeString},
				{Key: "network_tier", Name: "Network Tier", DataType: TypeString, AllowedValues: []string{"TIER_1", "TIER_2", "TIER_3"}},
				{Key: "provider_rating", Name: "Provider Rating", DataType: TypeNumber},
			},
		},
		{
			Name: "Doctor",
			Factors: []Definition{
				{Key: "doctor_title", Name: "Doctor Title", DataType: TypeString, AllowedValues: []string{"GENERAL_PRACTITIONER", "RESIDENT", "SPECIALIST", "SENIOR_SPECIALIST", "CONSULTANT"}},
				{Key: "doctor_experience_years", Name: "Doctor Experience (Years)", DataType: TypeNumber},
				{Key: "doctor_specialty", Name: "Doctor Specialty", DataType: TypeString},
			},
		},
		{
			Name: "Service",
			Factors: []Definition{
				{Key: "service_setting", Name: "Service Setting", DataType: TypeString, AllowedValues: []string{"INPATIENT", "OUTPATIENT", "DAY_CASE", "EMERGENCY"}},
				{Key: "visit_time", Name: "Visit Time", DataType: TypeString, AllowedValues: []string{"WORKING_HOURS", "AFTER_HOURS", "WEEKEND", "HOLIDAY"}},
				{Key: "room_type", Name: "Room Type", DataType: TypeString, AllowedValues: []string{"WARD", "SEMI_PRIVATE", "PRIVATE", "SUITE"}},
				{Key: "quantity", Name: "Quantity", DataType: TypeNumber},
				{Key: "length_of_stay_days", Name: "Length of Stay (Days)", DataType: TypeNumber},
				{Key: "service_attributes", Name: "Service Attributes", DataType: TypeString},
			},
		},
	}
}

// DefaultTaxonomy returns the built-in taxonomy.
// It panics if the built-in catalog is inconsistent, which tests guard against.
func DefaultTaxonomy() *Taxonomy {
	t, err := NewTaxonomy(DefaultCategories())
	if err != nil {
		panic(err)
	}
	return t
}
