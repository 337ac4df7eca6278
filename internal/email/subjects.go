package email

const (
	subjectLeadSuccess    = "Успешная сделка"
	subjectLeadSuccessFmt = "Успешная сделка: %s"
)
