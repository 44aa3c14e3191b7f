package models

// AllModels lists every table this service migrates, content tables included.
func AllModels() []interface{} {
	return []interface{}{
		&QuestionCategory{},
		&QuestionPackage{},
		&QuestionPage{},
		&QuestionItem{},
		&TestRecord{},
		&TestAttempt{},
		&ActiveSession{},
		&TemporaryAnswer{},
	}
}

