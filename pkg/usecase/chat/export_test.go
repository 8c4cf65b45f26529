package chat

var (
	CompactHistory    = compactHistory
	IsTokenLimitError = isTokenLimitError
	NormalizePlan     = normalizePlan
	TurnsToContents   = turnsToContents
)

const (
	StepLimitMessage   = stepLimitMessage
	CheckpointTemplate = checkpointTemplate
)
