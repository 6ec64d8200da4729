package outbox

import "example.com/fittrack/internal/events"

const activityChangedSchema = `{
  "type": "object",
  "title": "ActivityChanged",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "activity_type": {"type": "string", "enum": ["RUNNING", "WALKING", "CYCLING"]},
    "duration_min": {"type": "integer", "minimum": 1},
    "calories_burned": {"type": "integer", "minimum": 1},
    "started_at": {"type": "string", "format": "date-time"},
    "additional_metrics": {"type": "object"},
    "version": {"type": "string"}
  },
  "required": ["activity_id", "user_id", "activity_type", "duration_min", "calories_burned", "started_at", "version"],
  "additionalProperties": false
}`

const activityDeletedSchema = `{
  "type": "object",
  "title": "ActivityDeleted",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "deleted_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "deleted_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeActivityCreated: {Schema: activityChangedSchema},
	events.TypeActivityUpdated: {Schema: activityChangedSchema},
	events.TypeActivityDeleted: {Schema: activityDeletedSchema},
}
