package kernel

type TenantID string

func NewTenantID(id string) TenantID { return TenantID(id) }
func (t TenantID) String() string    { return string(t) }
func (t TenantID) IsEmpty() bool     { return string(t) == "" }

type FlowID string

func NewFlowID(id string) FlowID { return FlowID(id) }
func (f FlowID) String() string  { return string(f) }
func (f FlowID) IsEmpty() bool   { return string(f) == "" }

type ExecutionID string

func NewExecutionID(id string) ExecutionID { return ExecutionID(id) }
func (e ExecutionID) String() string       { return string(e) }
func (e ExecutionID) IsEmpty() bool        { return string(e) == "" }

type ContactID string

func NewContactID(id string) ContactID { return ContactID(id) }
func (c ContactID) String() string     { return string(c) }
func (c ContactID) IsEmpty() bool      { return string(c) == "" }

type TicketID string

func NewTicketID(id string) TicketID { return TicketID(id) }
func (t TicketID) String() string    { return string(t) }
func (t TicketID) IsEmpty() bool     { return string(t) == "" }

type QueueID string

func NewQueueID(id string) QueueID { return QueueID(id) }
func (q QueueID) String() string   { return string(q) }
func (q QueueID) IsEmpty() bool    { return string(q) == "" }

type MessageID string

func NewMessageID(id string) MessageID { return MessageID(id) }
func (m MessageID) String() string     { return string(m) }
func (m MessageID) IsEmpty() bool      { return string(m) == "" }
