package email

const (
	subjectLeadAssignedFmt          = "New %s lead in %s"
	subjectExclusiveLeadAssignedFmt = "Exclusive %s lead in %s"
)
