package match

// Code identifies why a request was rejected
type Code string

const (
	CodeInvalidPower     Code = "invalid_power"
	CodeUnknownStar      Code = "unknown_star"
	CodeMatchEnded       Code = "match_ended"
	CodeNotAuthority     Code = "not_authority"
	CodeNoMap            Code = "no_map"
	CodePowerExceeded    Code = "power_exceeded"
	CodeUnknownBonus     Code = "unknown_bonus"
	CodeBonusMaxed       Code = "bonus_maxed"
	CodeInsufficientGold Code = "insufficient_gold"
	CodeGeneration       Code = "generation_failed"
)

// Rejection is a request the authority refused. It is logged where it
// happens and never handed back to the requester.
type Rejection struct {
	Code Code
	Msg  string
}

func (r *Rejection) Error() string {
	if r.Msg == "" {
		return string(r.Code)
	}
	return string(r.Code) + ": " + r.Msg
}

// Is matches any Rejection with the same code
func (r *Rejection) Is(target error) bool {
	if t, ok := target.(*Rejection); ok {
		return r.Code == t.Code
	}
	return false
}

func reject(code Code, msg string) *Rejection {
	return &Rejection{Code: code, Msg: msg}
}

// Sentinels for errors.Is
var (
	ErrInvalidPower     = &Rejection{Code: CodeInvalidPower}
	ErrUnknownStar      = &Rejection{Code: CodeUnknownStar}
	ErrMatchEnded       = &Rejection{Code: CodeMatchEnded}
	ErrNotAuthority     = &Rejection{Code: CodeNotAuthority}
	ErrNoMap            = &Rejection{Code: CodeNoMap}
	ErrPowerExceeded    = &Rejection{Code: CodePowerExceeded}
	ErrUnknownBonus     = &Rejection{Code: CodeUnknownBonus}
	ErrBonusMaxed       = &Rejection{Code: CodeBonusMaxed}
	ErrInsufficientGold = &Rejection{Code: CodeInsufficientGold}
	ErrGeneration       = &Rejection{Code: CodeGeneration}
)
