package access

// Result is the outcome of a workflow operation. Denials are results, not errors.
type Result int

const (
	ResultOK Result = iota
	ResultAlreadyRequested
	ResultAlreadyApproved
	ResultAlreadyOwner
	ResultNotApproved
	ResultNotOwner
	ResultLastOwner
	ResultNotFound
	ResultNotPermitted
	ResultOwnerProtected
)

// Kind groups results into the error taxonomy shown to callers.
type Kind int

const (
	KindSuccess Kind = iota
	KindAlreadyInState
	KindNotFound
	KindNotPermitted
)

var resultNames = map[Result]string{
	ResultOK:               "ok",
	ResultAlreadyRequested: "already_requested",
	ResultAlreadyApproved:  "already_approved",
	ResultAlreadyOwner:     "already_owner",
	ResultNotApproved:      "not_approved",
	ResultNotOwner:         "not_owner",
	ResultLastOwner:        "last_owner",
	ResultNotFound:         "not_found",
	ResultNotPermitted:     "not_permitted",
	ResultOwnerProtected:   "owner_protected",
}

func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return "unknown"
}

// Kind reports which taxonomy bucket r belongs to.
func (r Result) Kind() Kind {
	switch r {
	case ResultOK:
		return KindSuccess
	case ResultNotFound:
		return KindNotFound
	case ResultNotPermitted, ResultLastOwner, ResultOwnerProtected:
		return KindNotPermitted
	default:
		return KindAlreadyInState
	}
}

// OK reports whether the operation changed state as requested.
func (r Result) OK() bool { return r == ResultOK }
