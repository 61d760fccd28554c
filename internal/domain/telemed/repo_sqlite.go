package telemed

import (
	"context"
	"database/sql"
	"time"
)

const consultationCols = `consultation_id, patient_id, study_uid, consultation_type, status,
	scheduled_time, duration_minutes, requesting_doctor_id, consulting_specialist_id,
	hospital_id, specialist_hospital_id, title, description, clinical_question,
	urgency_level, meeting_room_id, consultation_notes, diagnosis, recommendations,
	created_at, started_at, ended_at`

const participantCols = `participant_id, consultation_id, user_id, username, role,
	hospital_id, joined_at, left_at`

type RepoSQLite struct {
	db *sql.DB
}

func NewRepoSQLite(db *sql.DB) *RepoSQLite {
	return &RepoSQLite{db: db}
}

func scanConsultation(row interface{ Scan(...any) error }) (*Consultation, error) {
	var c Consultation
	err := row.Scan(&c.ConsultationID, &c.PatientID, &c.StudyUID, &c.ConsultationType,
		&c.Status, &c.ScheduledTime, &c.DurationMinutes, &c.RequestingDoctorID,
		&c.ConsultingSpecialist, &c.HospitalID, &c.SpecialistHospitalID, &c.Title,
		&c.Description, &c.ClinicalQuestion, &c.UrgencyLevel, &c.MeetingRoomID,
		&c.ConsultationNotes, &c.Diagnosis, &c.Recommendations, &c.CreatedAt,
		&c.StartedAt, &c.EndedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *RepoSQLite) Insert(ctx context.Context, c *Consultation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO consultations (`+consultationCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ConsultationID, c.PatientID, c.StudyUID, c.ConsultationType, c.Status,
		c.ScheduledTime, c.DurationMinutes, c.RequestingDoctorID, c.ConsultingSpecialist,
		c.HospitalID, c.SpecialistHospitalID, c.Title, c.Description, c.ClinicalQuestion,
		c.UrgencyLevel, c.MeetingRoomID, c.ConsultationNotes, c.Diagnosis,
		c.Recommendations, c.CreatedAt, c.StartedAt, c.EndedAt)
	return err
}

func (r *RepoSQLite) GetByID(ctx context.Context, id string) (*Consultation, error) {
	return scanConsultation(r.db.QueryRowContext(ctx,
		"SELECT "+consultationCols+" FROM consultations WHERE consultation_id = ?", id))
}

func (r *RepoSQLite) Update(ctx context.Context, c *Consultation) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE consultations SET status = ?, scheduled_time = ?, duration_minutes = ?,
			meeting_room_id = ?, consultation_notes = ?, diagnosis = ?, recommendations = ?,
			started_at = ?, ended_at = ?
		WHERE consultation_id = ?`,
		c.Status, c.ScheduledTime, c.DurationMinutes, c.MeetingRoomID,
		c.ConsultationNotes, c.Diagnosis, c.Recommendations, c.StartedAt, c.EndedAt,
		c.ConsultationID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *RepoSQLite) List(ctx context.Context, f ListFilters, limit, offset int) ([]*Consultation, int, error) {
	where := " WHERE 1=1"
	var args []any
	if f.PatientID != "" {
		where += " AND patient_id = ?"
		args = append(args, f.PatientID)
	}
	if f.DoctorID != "" {
		where += " AND (requesting_doctor_id = ? OR consulting_specialist_id = ?)"
		args = append(args, f.DoctorID, f.DoctorID)
	}
	if f.Status != "" {
		where += " AND status = ?"
		args = append(args, f.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM consultations"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+consultationCols+" FROM consultations"+where+
			" ORDER BY scheduled_time DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var consultations []*Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, 0, err
		}
		consultations = append(consultations, c)
	}
	return consultations, total, rows.Err()
}

func (r *RepoSQLite) ListUpcoming(ctx context.Context, doctorID string, from time.Time, limit int) ([]*Consultation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+consultationCols+` FROM consultations
		WHERE (requesting_doctor_id = ? OR consulting_specialist_id = ?)
		  AND status = ? AND scheduled_time >= ?
		ORDER BY scheduled_time LIMIT ?`,
		doctorID, doctorID, StatusScheduled, from, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var consultations []*Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		consultations = append(consultations, c)
	}
	return consultations, rows.Err()
}

func scanParticipant(row interface{ Scan(...any) error }) (*Participant, error) {
	var p Participant
	err := row.Scan(&p.ParticipantID, &p.ConsultationID, &p.UserID, &p.Username,
		&p.Role, &p.HospitalID, &p.JoinedAt, &p.LeftAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *RepoSQLite) InsertParticipant(ctx context.Context, p *Participant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO consultation_participants (`+participantCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ParticipantID, p.ConsultationID, p.UserID, p.Username, p.Role,
		p.HospitalID, p.JoinedAt, p.LeftAt)
	return err
}

func (r *RepoSQLite) GetParticipant(ctx context.Context, consultationID, userID string) (*Participant, error) {
	return scanParticipant(r.db.QueryRowContext(ctx,
		"SELECT "+participantCols+" FROM consultation_participants WHERE consultation_id = ? AND user_id = ?",
		consultationID, userID))
}

func (r *RepoSQLite) UpdateParticipant(ctx context.Context, p *Participant) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE consultation_participants SET joined_at = ?, left_at = ?
		WHERE participant_id = ?`,
		p.JoinedAt, p.LeftAt, p.ParticipantID)
	return err
}

func (r *RepoSQLite) ListParticipants(ctx context.Context, consultationID string) ([]*Participant, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+participantCols+" FROM consultation_participants WHERE consultation_id = ? ORDER BY username",
		consultationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []*Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}
