package submissions

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

const submissionColumns = "id, owner_id, status, processing_step, anonymization_mode, raw_audio_key, public_audio_key, transcript_preview, title, summary, tags_json, virality_score, moderation_verdict, moderation_json, description, suggested_tags_json, cover_image_key, created_at, updated_at, published_at"

func scanSubmission(scanner interface{ Scan(dest ...any) error }) (*Submission, error) {
	var (
		id                string
		ownerID           string
		statusStr         string
		step              int
		mode              sql.NullString
		rawKey            sql.NullString
		publicKey         sql.NullString
		transcript        sql.NullString
		title             sql.NullString
		summary           sql.NullString
		tagsJSON          sql.NullString
		virality          sql.NullInt64
		verdict           sql.NullString
		moderationJSON    sql.NullString
		description       sql.NullString
		suggestedTagsJSON sql.NullString
		coverKey          sql.NullString
		createdRaw        sql.NullString
		updatedRaw        sql.NullString
		publishedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&ownerID,
		&statusStr,
		&step,
		&mode,
		&rawKey,
		&publicKey,
		&transcript,
		&title,
		&summary,
		&tagsJSON,
		&virality,
		&verdict,
		&moderationJSON,
		&description,
		&suggestedTagsJSON,
		&coverKey,
		&createdRaw,
		&updatedRaw,
		&publishedRaw,
	); err != nil {
		return nil, err
	}

	sub := &Submission{
		ID:                id,
		OwnerID:           ownerID,
		Status:            Status(statusStr),
		Step:              Step(step),
		Mode:              Mode(mode.String),
		RawAudioKey:       rawKey.String,
		PublicAudioKey:    publicKey.String,
		TranscriptPreview: transcript.String,
		Title:             title.String,
		Summary:           summary.String,
		Tags:              decodeTags(tagsJSON),
		Verdict:           verdict.String,
		ModerationJSON:    moderationJSON.String,
		Description:       description.String,
		SuggestedTags:     decodeTags(suggestedTagsJSON),
		CoverImageKey:     coverKey.String,
	}
	if sub.Mode == "" {
		sub.Mode = DefaultMode
	}
	if virality.Valid {
		score := int(virality.Int64)
		sub.ViralityScore = &score
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		sub.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		sub.UpdatedAt = updated
	}
	if publishedRaw.Valid {
		if published, err := parseTimeString(publishedRaw.String); err == nil {
			sub.PublishedAt = &published
		}
	}
	return sub, nil
}

func decodeTags(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw.String), &tags); err != nil {
		return nil
	}
	return tags
}

func encodeTags(tags []string) (any, error) {
	if tags == nil {
		return nil, nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
