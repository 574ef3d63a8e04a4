package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/models"
)

// TypeEnvironment is the composite tag carrying humidity, outside temperature and pressure
// in one payload. It has no table of its own.
const TypeEnvironment = "environment"

const (
	defaultFallbackDeviceID = "unknown"
	defaultGenericDeviceID  = "raspberry-pi-brewery"
)

// ingestPlan lists the required numeric fields of a type tag and the kind each one is
// stored as. fields[i] is written to kinds[i].
type ingestPlan struct {
	fields []string
	kinds  []models.Kind
}

var ingestPlans = map[string]ingestPlan{
	string(models.KindWeight):             {fields: []string{"weight_kg"}, kinds: []models.Kind{models.KindWeight}},
	string(models.KindTemperature):        {fields: []string{"temperature_celsius"}, kinds: []models.Kind{models.KindTemperature}},
	string(models.KindPH):                 {fields: []string{"ph_value"}, kinds: []models.Kind{models.KindPH}},
	string(models.KindOutsideTemperature): {fields: []string{"temperature_celsius"}, kinds: []models.Kind{models.KindOutsideTemperature}},
	string(models.KindHumidity):           {fields: []string{"humidity_percent"}, kinds: []models.Kind{models.KindHumidity}},
	string(models.KindPressure):           {fields: []string{"pressure_hpa"}, kinds: []models.Kind{models.KindPressure}},
	TypeEnvironment: {
		fields: []string{"humidity_percent", "temperature_celsius", "pressure_hpa"},
		kinds:  []models.Kind{models.KindHumidity, models.KindOutsideTemperature, models.KindPressure},
	},
}

// ValidTypes returns the accepted payload type tags, sorted.
func ValidTypes() []string {
	types := make([]string, 0, len(ingestPlans))
	for tag := range ingestPlans {
		types = append(types, tag)
	}
	sort.Strings(types)
	return types
}

func kindTags() []string {
	tags := make([]string, 0, len(models.AllKinds))
	for _, k := range models.AllKinds {
		tags = append(tags, string(k))
	}
	sort.Strings(tags)
	return tags
}

// ReadingWriter is the storage contract used by ingest.
type ReadingWriter interface {
	Insert(ctx context.Context, reading *models.Reading) error
	InsertAll(ctx context.Context, readings []*models.Reading) error
}

// PresenceRecorder remembers when a device was last heard from.
type PresenceRecorder interface {
	Touch(ctx context.Context, deviceID, sensorType string, at time.Time) error
}

// IngestConfig holds the device id fallbacks.
type IngestConfig struct {
	// FallbackDeviceID is used by ProcessMessage when a payload has no device_id.
	FallbackDeviceID string
	// GenericDeviceID is used by IngestValue when the caller omits device_id.
	GenericDeviceID string
}

// IngestService validates raw sensor payloads and persists them as typed readings.
type IngestService struct {
	repo     ReadingWriter
	presence PresenceRecorder
	metrics  *IngestMetrics
	cfg      IngestConfig
	logger   *zap.Logger
}

// IngestResult describes a stored payload.
type IngestResult struct {
	Type     string
	DeviceID string
	Readings []models.Reading
}

// SensorValue is the generic single-value form posted by simple device scripts.
type SensorValue struct {
	Type     string   `json:"type"`
	Value    *float64 `json:"value"`
	DeviceID string   `json:"device_id"`
}

// BatchItemResult is the outcome of one batch element.
type BatchItemResult struct {
	Index    int    `json:"index"`
	Status   string `json:"status"`
	Type     string `json:"type,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// BatchResult aggregates a batch ingest.
type BatchResult struct {
	Total   int               `json:"total"`
	Success int               `json:"success"`
	Failed  int               `json:"failed"`
	Results []BatchItemResult `json:"results"`
}

// NewIngestService builds IngestService. presence and metrics may be nil.
func NewIngestService(repo ReadingWriter, presence PresenceRecorder, metrics *IngestMetrics, cfg IngestConfig, logger *zap.Logger) *IngestService {
	if strings.TrimSpace(cfg.FallbackDeviceID) == "" {
		cfg.FallbackDeviceID = defaultFallbackDeviceID
	}
	if strings.TrimSpace(cfg.GenericDeviceID) == "" {
		cfg.GenericDeviceID = defaultGenericDeviceID
	}
	return &IngestService{
		repo:     repo,
		presence: presence,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
	}
}

// Ingest validates one payload and stores it. device_id is mandatory.
func (s *IngestService) Ingest(ctx context.Context, payload map[string]interface{}) (*IngestResult, error) {
	event, err := parseEvent(payload, "")
	if err != nil {
		s.metrics.observe(tagOf(payload), outcomeRejected)
		return nil, err
	}
	return s.store(ctx, event)
}

// IngestBatch ingests payloads in order. A nil element is reported as an invalid item.
// Every element is stored in its own transaction so failures never affect siblings.
func (s *IngestService) IngestBatch(ctx context.Context, payloads []map[string]interface{}) BatchResult {
	result := BatchResult{
		Total:   len(payloads),
		Results: make([]BatchItemResult, 0, len(payloads)),
	}

	for i, payload := range payloads {
		item := BatchItemResult{Index: i}
		if tag, ok := payload["type"].(string); ok {
			item.Type = tag
		}
		if deviceID, ok := payload["device_id"].(string); ok {
			item.DeviceID = deviceID
		}

		var err error
		if payload == nil {
			err = invalidValue("payload", "item must be a JSON object")
			s.metrics.observe("", outcomeRejected)
		} else {
			_, err = s.Ingest(ctx, payload)
		}

		if err != nil {
			item.Status = "error"
			item.Detail = err.Error()
			result.Failed++
		} else {
			item.Status = "success"
			result.Success++
		}
		result.Results = append(result.Results, item)
	}

	return result
}

// ProcessMessage handles one raw JSON message relayed from a device. A missing device_id
// falls back to the configured identifier. Failures are logged and reported as false.
func (s *IngestService) ProcessMessage(ctx context.Context, raw []byte) bool {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil || payload == nil {
		s.metrics.observe("", outcomeRejected)
		s.logger.Warn("invalid sensor message", zap.Error(err), zap.Int("bytes", len(raw)))
		return false
	}

	event, err := parseEvent(payload, s.cfg.FallbackDeviceID)
	if err != nil {
		s.metrics.observe(tagOf(payload), outcomeRejected)
		s.logger.Warn("rejected sensor message", zap.Error(err))
		return false
	}

	if _, err := s.store(ctx, event); err != nil {
		return false
	}
	return true
}

// IngestValue stores a generic {type, value, device_id} reading. Only the six table kinds
// are accepted here.
func (s *IngestService) IngestValue(ctx context.Context, in SensorValue) (*models.Reading, error) {
	tag := strings.TrimSpace(in.Type)
	if tag == "" {
		s.metrics.observe("", outcomeRejected)
		return nil, missingFields("type")
	}
	kind, ok := models.ParseKind(tag)
	if !ok {
		s.metrics.observe(tag, outcomeRejected)
		return nil, unknownType(tag, kindTags())
	}
	if in.Value == nil {
		s.metrics.observe(tag, outcomeRejected)
		return nil, missingFields("value")
	}
	if err := checkValue(kind, "value", *in.Value); err != nil {
		s.metrics.observe(tag, outcomeRejected)
		return nil, err
	}

	deviceID := strings.TrimSpace(in.DeviceID)
	if deviceID == "" {
		deviceID = s.cfg.GenericDeviceID
	}
	if err := checkDeviceID(deviceID); err != nil {
		s.metrics.observe(tag, outcomeRejected)
		return nil, err
	}

	result, err := s.store(ctx, &sensorEvent{
		tag:      tag,
		deviceID: deviceID,
		readings: []*models.Reading{{Kind: kind, DeviceID: deviceID, Value: *in.Value}},
	})
	if err != nil {
		return nil, err
	}
	return &result.Readings[0], nil
}

type sensorEvent struct {
	tag      string
	deviceID string
	readings []*models.Reading
}

func (s *IngestService) store(ctx context.Context, event *sensorEvent) (*IngestResult, error) {
	var err error
	if len(event.readings) == 1 {
		err = s.repo.Insert(ctx, event.readings[0])
	} else {
		err = s.repo.InsertAll(ctx, event.readings)
	}
	if err != nil {
		s.metrics.observe(event.tag, outcomeFailed)
		s.logger.Error("failed to store sensor reading",
			zap.String("type", event.tag),
			zap.String("device_id", event.deviceID),
			zap.Error(err),
		)
		return nil, err
	}
	s.metrics.observe(event.tag, outcomeSuccess)

	result := &IngestResult{
		Type:     event.tag,
		DeviceID: event.deviceID,
		Readings: make([]models.Reading, 0, len(event.readings)),
	}
	for _, reading := range event.readings {
		result.Readings = append(result.Readings, *reading)
	}

	s.logger.Info("stored sensor reading",
		zap.String("type", event.tag),
		zap.String("device_id", event.deviceID),
		zap.Int("rows", len(result.Readings)),
	)

	if s.presence != nil {
		at := result.Readings[0].Timestamp
		if err := s.presence.Touch(ctx, event.deviceID, event.tag, at); err != nil {
			s.logger.Warn("failed to record device presence", zap.String("device_id", event.deviceID), zap.Error(err))
		}
	}
	return result, nil
}

// parseEvent applies the validation order: type present, device_id present, type known,
// type specific fields present, values numeric and in range. A non-empty fallbackDevice
// replaces a missing device_id instead of failing.
func parseEvent(payload map[string]interface{}, fallbackDevice string) (*sensorEvent, error) {
	rawType, ok := payload["type"]
	if !ok || rawType == nil {
		return nil, missingFields("type")
	}

	deviceID, err := deviceIDOf(payload, fallbackDevice)
	if err != nil {
		return nil, err
	}

	tag, _ := rawType.(string)
	plan, ok := ingestPlans[tag]
	if !ok {
		return nil, unknownType(rawType, ValidTypes())
	}

	var missing []string
	for _, field := range plan.fields {
		if v, ok := payload[field]; !ok || v == nil {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, missingFields(missing...)
	}

	var invalid []*ValidationError
	event := &sensorEvent{tag: tag, deviceID: deviceID}
	for i, field := range plan.fields {
		kind := plan.kinds[i]
		value, ok := toFloat(payload[field])
		if !ok {
			invalid = append(invalid, invalidValue(field, "%s must be a number", field))
			continue
		}
		if err := checkValue(kind, field, value); err != nil {
			invalid = append(invalid, err)
			continue
		}
		event.readings = append(event.readings, &models.Reading{Kind: kind, DeviceID: deviceID, Value: value})
	}
	if len(invalid) > 0 {
		return nil, joinInvalid(invalid)
	}
	return event, nil
}

func deviceIDOf(payload map[string]interface{}, fallback string) (string, error) {
	raw, ok := payload["device_id"]
	if !ok || raw == nil {
		if fallback != "" {
			return fallback, nil
		}
		return "", missingFields("device_id")
	}
	deviceID, ok := raw.(string)
	if !ok {
		return "", invalidValue("device_id", "device_id must be a string")
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		if fallback != "" {
			return fallback, nil
		}
		return "", missingFields("device_id")
	}
	if err := checkDeviceID(deviceID); err != nil {
		return "", err
	}
	return deviceID, nil
}

func checkDeviceID(deviceID string) error {
	if n := utf8.RuneCountInString(deviceID); n > models.MaxDeviceIDLength {
		return invalidValue("device_id", "device_id must be at most %d characters, got %d", models.MaxDeviceIDLength, n)
	}
	return nil
}

func checkValue(kind models.Kind, field string, value float64) *ValidationError {
	spec, _ := kind.Spec()
	if spec.InRange(value) {
		return nil
	}
	switch {
	case spec.Min != nil && spec.Max != nil:
		return invalidValue(field, "%s must be between %g and %g, got %g", field, *spec.Min, *spec.Max, value)
	case spec.Min != nil:
		return invalidValue(field, "%s must be at least %g, got %g", field, *spec.Min, value)
	default:
		return invalidValue(field, "%s must be at most %g, got %g", field, *spec.Max, value)
	}
}

func joinInvalid(errs []*ValidationError) *ValidationError {
	if len(errs) == 1 {
		return errs[0]
	}
	joined := &ValidationError{Err: ErrInvalidValue}
	details := make([]string, 0, len(errs))
	for _, e := range errs {
		joined.Fields = append(joined.Fields, e.Fields...)
		details = append(details, e.Detail)
	}
	joined.Detail = strings.Join(details, "; ")
	return joined
}

func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func tagOf(payload map[string]interface{}) string {
	tag, _ := payload["type"].(string)
	return tag
}

// IsValidationError reports whether err is a rejected input rather than a storage failure.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
