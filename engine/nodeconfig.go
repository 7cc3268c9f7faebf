package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ============================================================================
// Node Config Interface
// ============================================================================

// NodeConfig interface que implementan todas las configuraciones de nodo
type NodeConfig interface {
	Validate() error
	GetType() NodeType
}

// decodeInto convierte el map de configuración (persistido o inline) a la
// struct tipada vía round-trip JSON.
func decodeInto(config map[string]any, out any) error {
	data, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// ============================================================================
// Message Config
// ============================================================================

type MessageConfig struct {
	Text      string  `json:"text,omitempty"`
	MediaType string  `json:"media_type,omitempty"` // image, audio, video, document, location
	MediaURL  string  `json:"media_url,omitempty"`
	Caption   string  `json:"caption,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

func (c MessageConfig) Validate() error {
	if c.Text == "" && c.MediaURL == "" && c.MediaType != "location" {
		return ErrConfiguration().WithDetail("reason", "text or media_url is required")
	}
	return nil
}

func (c MessageConfig) GetType() NodeType { return NodeTypeMessage }

// Content construye el contenido saliente del canal
func (c MessageConfig) Content(renderedText string) OutboundContent {
	if c.MediaType == "location" {
		return OutboundContent{Type: "location", Latitude: c.Latitude, Longitude: c.Longitude, Caption: c.Caption}
	}
	if c.MediaURL != "" {
		mediaType := c.MediaType
		if mediaType == "" {
			mediaType = "document"
		}
		return OutboundContent{Type: mediaType, MediaURL: c.MediaURL, Caption: renderedText}
	}
	return OutboundContent{Type: "text", Text: renderedText}
}

// ============================================================================
// Question / Menu Config
// ============================================================================

type QuestionConfig struct {
	Prompt       string           `json:"prompt"`
	Variable     string           `json:"variable"`
	InputType    InputType        `json:"input_type,omitempty"`
	Options      []ResponseOption `json:"options,omitempty"`
	Rules        ValidationRules  `json:"rules,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

func (c QuestionConfig) Validate() error {
	if c.Prompt == "" {
		return ErrConfiguration().WithDetail("reason", "prompt is required")
	}
	if c.Variable == "" {
		return ErrConfiguration().WithDetail("reason", "variable is required")
	}
	if c.InputType == InputTypeRegex && c.Rules.Pattern == "" {
		return ErrConfiguration().WithDetail("reason", "pattern is required for regex input")
	}
	return nil
}

func (c QuestionConfig) GetType() NodeType { return NodeTypeQuestion }

// GetInputType retorna el tipo de entrada con default a texto libre
func (c QuestionConfig) GetInputType() InputType {
	if c.InputType == "" {
		if len(c.Options) > 0 {
			return InputTypeOption
		}
		return InputTypeText
	}
	return c.InputType
}

type MenuConfig struct {
	Prompt       string           `json:"prompt"`
	Variable     string           `json:"variable,omitempty"`
	Options      []ResponseOption `json:"options"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

func (c MenuConfig) Validate() error {
	if c.Prompt == "" {
		return ErrConfiguration().WithDetail("reason", "prompt is required")
	}
	if len(c.Options) == 0 {
		return ErrConfiguration().WithDetail("reason", "options cannot be empty")
	}
	return nil
}

func (c MenuConfig) GetType() NodeType { return NodeTypeMenu }

// GetVariable retorna la variable destino con default
func (c MenuConfig) GetVariable() string {
	if c.Variable == "" {
		return "menu_selection"
	}
	return c.Variable
}

// RenderOptions produce el texto del menú numerado
func (c MenuConfig) RenderOptions() string {
	var sb strings.Builder
	for i, opt := range c.Options {
		fmt.Fprintf(&sb, "%d - %s\n", i+1, opt.Label)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ============================================================================
// Conditional Config
// ============================================================================

type Condition struct {
	ID       string `json:"id"`
	Variable string `json:"variable"`
	Operator string `json:"operator"` // equals, notEquals, contains, startsWith, greater, less, greaterOrEqual, lessOrEqual, exists, regex
	Value    any    `json:"value,omitempty"`
}

type ConditionalConfig struct {
	Conditions []Condition `json:"conditions"`
}

func (c ConditionalConfig) Validate() error {
	if len(c.Conditions) == 0 {
		return ErrConfiguration().WithDetail("reason", "conditions cannot be empty")
	}
	for _, cond := range c.Conditions {
		if cond.Variable == "" {
			return ErrConfiguration().WithDetail("reason", "condition variable is required")
		}
		if cond.Operator == "" {
			return ErrConfiguration().WithDetail("reason", "condition operator is required")
		}
	}
	return nil
}

func (c ConditionalConfig) GetType() NodeType { return NodeTypeConditional }

// ============================================================================
// Attendant / Queue Config
// ============================================================================

type AttendantConfig struct {
	QueueID      string `json:"queue_id,omitempty"`
	Message      string `json:"message,omitempty"`
	ContinueFlow bool   `json:"continue_flow,omitempty"`
}

func (c AttendantConfig) Validate() error { return nil }

func (c AttendantConfig) GetType() NodeType { return NodeTypeAttendant }

type QueueConfig struct {
	QueueID      string `json:"queue_id"`
	Message      string `json:"message,omitempty"`
	ContinueFlow bool   `json:"continue_flow,omitempty"`
}

func (c QueueConfig) Validate() error {
	if c.QueueID == "" {
		return ErrConfiguration().WithDetail("reason", "queue_id is required")
	}
	return nil
}

func (c QueueConfig) GetType() NodeType { return NodeTypeQueue }

// ============================================================================
// HTTP Action Config (webhook / api nodes)
// ============================================================================

type HTTPAuth struct {
	Mode       string `json:"mode,omitempty"` // none, basic, bearer, apikey
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	Token      string `json:"token,omitempty"`
	APIKeyName string `json:"api_key_name,omitempty"`
	APIKey     string `json:"api_key,omitempty"`
	APIKeyIn   string `json:"api_key_in,omitempty"` // header, query
}

type HTTPActionConfig struct {
	Method           string            `json:"method,omitempty"`
	URL              string            `json:"url"`
	Headers          map[string]string `json:"headers,omitempty"`
	Body             map[string]any    `json:"body,omitempty"`
	Auth             HTTPAuth          `json:"auth,omitempty"`
	Timeout          *int              `json:"timeout,omitempty"` // seconds
	MaxRetries       *int              `json:"max_retries,omitempty"`
	ResponsePath     string            `json:"response_path,omitempty"` // data.items[0].id
	ResponseVariable string            `json:"response_variable,omitempty"`
	MaxResponseBytes *int64            `json:"max_response_bytes,omitempty"`
}

func (c HTTPActionConfig) Validate() error {
	if c.URL == "" {
		return ErrConfiguration().WithDetail("reason", "url is required")
	}

	validMethods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	method := c.GetMethod()
	isValid := false
	for _, vm := range validMethods {
		if method == vm {
			isValid = true
			break
		}
	}
	if !isValid {
		return ErrConfiguration().WithDetail("reason", "invalid HTTP method: "+method)
	}

	switch c.Auth.Mode {
	case "", "none", "basic", "bearer", "apikey":
	default:
		return ErrConfiguration().WithDetail("reason", "invalid auth mode: "+c.Auth.Mode)
	}

	return nil
}

func (c HTTPActionConfig) GetType() NodeType { return NodeTypeAPI }

func (c HTTPActionConfig) GetMethod() string {
	if c.Method == "" {
		return "GET"
	}
	return strings.ToUpper(c.Method)
}

func (c HTTPActionConfig) GetMaxRetries() int {
	if c.MaxRetries != nil && *c.MaxRetries >= 0 {
		return *c.MaxRetries
	}
	return 3
}

func (c HTTPActionConfig) GetResponseVariable() string {
	if c.ResponseVariable == "" {
		return "http_response"
	}
	return c.ResponseVariable
}

// ============================================================================
// Database Config
// ============================================================================

type DatabaseConfig struct {
	Backend  string `json:"backend"` // postgres, mysql, mongodb
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Database string `json:"database"`

	// relacional
	Query  string `json:"query,omitempty"`
	Params []any  `json:"params,omitempty"`

	// documental
	Collection string         `json:"collection,omitempty"`
	Operation  string         `json:"operation,omitempty"` // find, insert, update, delete
	Document   map[string]any `json:"document,omitempty"`
	Filter     map[string]any `json:"filter,omitempty"`
	Sort       map[string]any `json:"sort,omitempty"`
	Limit      int64          `json:"limit,omitempty"`

	Timeout            *int   `json:"timeout,omitempty"` // seconds
	StoreErrorResponse bool   `json:"store_error_response,omitempty"`
	ResponseVariable   string `json:"response_variable,omitempty"`
}

func (c DatabaseConfig) Validate() error {
	switch c.Backend {
	case "postgres", "mysql":
		if c.Query == "" {
			return ErrConfiguration().WithDetail("reason", "query is required for relational backends")
		}
	case "mongodb":
		if c.Collection == "" {
			return ErrConfiguration().WithDetail("reason", "collection is required for mongodb")
		}
		switch c.Operation {
		case "find", "insert", "update", "delete":
		default:
			return ErrConfiguration().WithDetail("reason", "invalid mongodb operation: "+c.Operation)
		}
	default:
		return ErrConfiguration().WithDetail("reason", "unsupported backend: "+c.Backend)
	}
	if c.Host == "" {
		return ErrConfiguration().WithDetail("reason", "host is required")
	}
	if c.Database == "" {
		return ErrConfiguration().WithDetail("reason", "database is required")
	}
	return nil
}

func (c DatabaseConfig) GetType() NodeType { return NodeTypeDatabase }

// GetPort retorna el puerto con default por motor
func (c DatabaseConfig) GetPort() int {
	if c.Port > 0 {
		return c.Port
	}
	switch c.Backend {
	case "mysql":
		return 3306
	case "mongodb":
		return 27017
	default:
		return 5432
	}
}

func (c DatabaseConfig) GetResponseVariable() string {
	if c.ResponseVariable == "" {
		return "db_response"
	}
	return c.ResponseVariable
}

// ============================================================================
// Schedule Config
// ============================================================================

type BusinessWindow struct {
	Weekdays []int  `json:"weekdays"` // 0=domingo ... 6=sábado
	Start    string `json:"start"`    // "09:00"
	End      string `json:"end"`      // "18:00"
}

type ScheduleConfig struct {
	Timezone string           `json:"timezone,omitempty"`
	Windows  []BusinessWindow `json:"windows"`
}

func (c ScheduleConfig) Validate() error {
	if len(c.Windows) == 0 {
		return ErrConfiguration().WithDetail("reason", "windows cannot be empty")
	}
	for _, w := range c.Windows {
		if w.Start == "" || w.End == "" {
			return ErrConfiguration().WithDetail("reason", "window start and end are required")
		}
	}
	return nil
}

func (c ScheduleConfig) GetType() NodeType { return NodeTypeSchedule }

// ============================================================================
// Tag / Note / Switch-Flow / Inactivity Config
// ============================================================================

type TagConfig struct {
	Tag string `json:"tag"`
}

func (c TagConfig) Validate() error {
	if c.Tag == "" {
		return ErrConfiguration().WithDetail("reason", "tag is required")
	}
	return nil
}

func (c TagConfig) GetType() NodeType { return NodeTypeTag }

type NoteConfig struct {
	Body string `json:"body"`
}

func (c NoteConfig) Validate() error {
	if c.Body == "" {
		return ErrConfiguration().WithDetail("reason", "body is required")
	}
	return nil
}

func (c NoteConfig) GetType() NodeType { return NodeTypeInternalNote }

type SwitchFlowConfig struct {
	FlowID         string `json:"flow_id"`
	CarryVariables bool   `json:"carry_variables,omitempty"`
}

func (c SwitchFlowConfig) Validate() error {
	if c.FlowID == "" {
		return ErrConfiguration().WithDetail("reason", "flow_id is required")
	}
	return nil
}

func (c SwitchFlowConfig) GetType() NodeType { return NodeTypeSwitchFlow }

// ============================================================================
// Config Extraction Helpers
// ============================================================================

func ExtractMessageConfig(config map[string]any) (*MessageConfig, error) {
	var c MessageConfig
	if err := decodeInto(config, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func ExtractQuestionConfig(config map[string]any) (*QuestionConfig, error) {
	var c QuestionConfig
	if err := decodeInto(config, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func ExtractMenuConfig(config map[string]any) (*MenuConfig, error) {
	var c MenuConfig
	if err := decodeInto(config, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func ExtractConditionalConfig(config map[string]any) (*ConditionalConfig, error) {
	var c ConditionalConfig
	if err := decodeInto(config, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func ExtractAttendantConfig(config map[string]any) (*AttendantConfig, error) {
	var c AttendantConfig
	if err := decodeInto(config, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func ExtractQueueConfig(config map[string]any) (*QueueConfig, error) {
	var c QueueConfig
	if err := decodeInto(config, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func ExtractHTTPActionConfig(config map[string]any) (*HTTPActionConfig, error) {
	var c HTTPActionConfig
	if err := decodeInto(config, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func ExtractDatabaseConfig(config map[string]any) (*DatabaseConfig, error) {
	var c DatabaseConfig
	if err := decodeInto(config, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func ExtractScheduleConfig(config map[string]any) (*ScheduleConfig, error) {
	var c ScheduleConfig
	if err := decodeInto(config, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func ExtractTagConfig(config map[string]any) (*TagConfig, error) {
	var c TagConfig
	if err := decodeInto(config, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func ExtractNoteConfig(config map[string]any) (*NoteConfig, error) {
	var c NoteConfig
	if err := decodeInto(config, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func ExtractSwitchFlowConfig(config map[string]any) (*SwitchFlowConfig, error) {
	var c SwitchFlowConfig
	if err := decodeInto(config, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func ExtractInactivityConfig(config map[string]any) (*InactivityConfig, error) {
	var c InactivityConfig
	if err := decodeInto(config, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
