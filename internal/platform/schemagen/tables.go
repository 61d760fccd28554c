package schemagen

// ManagementTables returns the portable definitions of the platform's
// management schema, used to generate DDL for external engines. The
// definitions mirror the embedded SQLite migrations.
func ManagementTables() []Table {
	return []Table{
		{
			Name: "referring_doctors",
			Columns: []Column{
				{Name: "id", Type: TypeVarchar50, NotNull: true, PrimaryKey: true},
				{Name: "name", Type: TypeVarchar100, NotNull: true},
				{Name: "hpcsa_number", Type: TypeVarchar50, NotNull: true, Unique: true},
				{Name: "email", Type: TypeVarchar100},
				{Name: "phone", Type: TypeVarchar50},
				{Name: "practice_name", Type: TypeVarchar100},
				{Name: "specialty", Type: TypeVarchar100},
				{Name: "access_level", Type: TypeVarchar50, Default: "view"},
				{Name: "is_active", Type: TypeBoolean, Default: "true"},
				{Name: "created_at", Type: TypeTimestamp, Default: "CURRENT_TIMESTAMP"},
				{Name: "updated_at", Type: TypeTimestamp},
			},
			Indexes: []Index{
				{Name: "idx_referring_doctors_hpcsa", Columns: []string{"hpcsa_number"}, Unique: true},
				{Name: "idx_referring_doctors_active", Columns: []string{"is_active"}},
			},
		},
		{
			Name: "patient_authorizations",
			Columns: []Column{
				{Name: "id", Type: TypeVarchar50, NotNull: true, PrimaryKey: true},
				{Name: "doctor_id", Type: TypeVarchar50, NotNull: true, ForeignKey: "referring_doctors.id"},
				{Name: "patient_id", Type: TypeVarchar100, NotNull: true},
				{Name: "study_instance_uid", Type: TypeVarchar255},
				{Name: "access_level", Type: TypeVarchar50, Default: "view_only"},
				{Name: "granted_by", Type: TypeVarchar50, NotNull: true},
				{Name: "granted_at", Type: TypeTimestamp, Default: "CURRENT_TIMESTAMP"},
				{Name: "expires_at", Type: TypeTimestamp},
				{Name: "is_active", Type: TypeBoolean, Default: "true"},
				{Name: "access_count", Type: TypeInteger, Default: "0"},
				{Name: "last_accessed", Type: TypeTimestamp},
				{Name: "notes", Type: TypeText},
				{Name: "access_reason", Type: TypeText},
				{Name: "created_at", Type: TypeTimestamp, Default: "CURRENT_TIMESTAMP"},
				{Name: "updated_at", Type: TypeTimestamp},
				{Name: "revoked_at", Type: TypeTimestamp},
				{Name: "revoked_by", Type: TypeVarchar50},
				{Name: "revoked_reason", Type: TypeVarchar255},
			},
			Indexes: []Index{
				{Name: "idx_patient_auth_doctor_patient", Columns: []string{"doctor_id", "patient_id"}},
				{Name: "idx_patient_auth_active_expires", Columns: []string{"is_active", "expires_at"}},
			},
		},
		{
			Name: "secure_links",
			Columns: []Column{
				{Name: "link_id", Type: TypeVarchar50, NotNull: true, PrimaryKey: true},
				{Name: "resource_type", Type: TypeVarchar50, NotNull: true},
				{Name: "resource_id", Type: TypeVarchar255, NotNull: true},
				{Name: "created_by", Type: TypeVarchar50, NotNull: true},
				{Name: "recipient_email", Type: TypeVarchar100},
				{Name: "recipient_name", Type: TypeVarchar100},
				{Name: "access_token", Type: TypeVarchar255, NotNull: true, Unique: true},
				{Name: "encryption_key", Type: TypeText, NotNull: true},
				{Name: "expires_at", Type: TypeTimestamp, NotNull: true},
				{Name: "max_views", Type: TypeInteger, Default: "-1"},
				{Name: "current_views", Type: TypeInteger, Default: "0"},
				{Name: "requires_password", Type: TypeBoolean, Default: "false"},
				{Name: "password_hash", Type: TypeVarchar255},
				{Name: "allowed_ips", Type: TypeJSON},
				{Name: "is_active", Type: TypeBoolean, Default: "true"},
				{Name: "created_at", Type: TypeTimestamp, Default: "CURRENT_TIMESTAMP"},
				{Name: "last_accessed", Type: TypeTimestamp},
			},
			Indexes: []Index{
				{Name: "idx_secure_links_token", Columns: []string{"access_token"}, Unique: true},
				{Name: "idx_secure_links_creator", Columns: []string{"created_by"}},
			},
		},
		{
			Name: "link_access_attempts",
			Columns: []Column{
				{Name: "access_id", Type: TypeVarchar50, NotNull: true, PrimaryKey: true},
				{Name: "link_id", Type: TypeVarchar50, ForeignKey: "secure_links.link_id"},
				{Name: "ip_address", Type: TypeVarchar50},
				{Name: "user_agent", Type: TypeVarchar255},
				{Name: "success", Type: TypeBoolean, NotNull: true},
				{Name: "failure_reason", Type: TypeVarchar100},
				{Name: "accessed_at", Type: TypeTimestamp, Default: "CURRENT_TIMESTAMP"},
			},
			Indexes: []Index{
				{Name: "idx_link_access_link", Columns: []string{"link_id"}},
			},
		},
		{
			Name: "audit_log",
			Columns: []Column{
				{Name: "id", Type: TypeVarchar50, NotNull: true, PrimaryKey: true},
				{Name: "actor_id", Type: TypeVarchar50},
				{Name: "actor_type", Type: TypeVarchar50},
				{Name: "action", Type: TypeVarchar50, NotNull: true},
				{Name: "resource_type", Type: TypeVarchar100},
				{Name: "resource_id", Type: TypeVarchar255},
				{Name: "patient_id", Type: TypeVarchar100},
				{Name: "study_uid", Type: TypeVarchar255},
				{Name: "details", Type: TypeJSON},
				{Name: "compliance_category", Type: TypeVarchar50},
				{Name: "source_ip", Type: TypeVarchar50},
				{Name: "user_agent", Type: TypeVarchar255},
				{Name: "recorded_at", Type: TypeTimestamp, Default: "CURRENT_TIMESTAMP"},
			},
			Indexes: []Index{
				{Name: "idx_audit_log_action", Columns: []string{"action"}},
				{Name: "idx_audit_log_patient", Columns: []string{"patient_id"}},
				{Name: "idx_audit_log_recorded", Columns: []string{"recorded_at"}},
			},
		},
		{
			Name: "nas_devices",
			Columns: []Column{
				{Name: "device_id", Type: TypeVarchar50, NotNull: true, PrimaryKey: true},
				{Name: "device_name", Type: TypeVarchar100, NotNull: true},
				{Name: "ip_address", Type: TypeVarchar50, NotNull: true},
				{Name: "manufacturer", Type: TypeVarchar100},
				{Name: "model", Type: TypeVarchar100},
				{Name: "default_domain", Type: TypeVarchar100},
				{Name: "admin_username", Type: TypeVarchar100},
				{Name: "admin_password_encrypted", Type: TypeText},
				{Name: "is_active", Type: TypeBoolean, Default: "true"},
				{Name: "created_at", Type: TypeTimestamp, Default: "CURRENT_TIMESTAMP"},
				{Name: "last_discovery", Type: TypeTimestamp},
			},
		},
		{
			Name: "shared_folders",
			Columns: []Column{
				{Name: "folder_id", Type: TypeVarchar50, NotNull: true, PrimaryKey: true},
				{Name: "nas_device_id", Type: TypeVarchar50, NotNull: true, ForeignKey: "nas_devices.device_id"},
				{Name: "procedure_type", Type: TypeVarchar50, NotNull: true},
				{Name: "share_name", Type: TypeVarchar100, NotNull: true},
				{Name: "share_path", Type: TypeVarchar255, NotNull: true},
				{Name: "username", Type: TypeVarchar100},
				{Name: "password_encrypted", Type: TypeText},
				{Name: "domain", Type: TypeVarchar100},
				{Name: "protocol", Type: TypeVarchar50, Default: "SMB"},
				{Name: "mount_point", Type: TypeVarchar255},
				{Name: "auto_mount", Type: TypeBoolean, Default: "false"},
				{Name: "read_only", Type: TypeBoolean, Default: "false"},
				{Name: "priority", Type: TypeInteger, Default: "5"},
				{Name: "is_active", Type: TypeBoolean, Default: "true"},
				{Name: "created_at", Type: TypeTimestamp, Default: "CURRENT_TIMESTAMP"},
				{Name: "last_tested", Type: TypeTimestamp},
				{Name: "last_successful", Type: TypeTimestamp},
			},
			Indexes: []Index{
				{Name: "idx_shared_folders_device", Columns: []string{"nas_device_id"}},
				{Name: "idx_shared_folders_procedure", Columns: []string{"procedure_type"}},
			},
		},
	}
}
