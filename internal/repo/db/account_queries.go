package db

const accountColumns = `
	id,
	phone,
	email,
	password_hash,
	token_version,
	token_family,
	is_blocked,
	is_verified,
	is_admin,
	created_at,
	updated_at
`

const accountGetByIDQ = `SELECT` + accountColumns + `FROM accounts WHERE id = $1`

const accountGetByPhoneQ = `SELECT` + accountColumns + `FROM accounts WHERE phone = $1`

const accountLockQ = `SELECT` + accountColumns + `FROM accounts WHERE id = $1 FOR UPDATE`

const accountCreateQ = `
INSERT INTO accounts (id, phone, email, password_hash, token_version, token_family, is_verified)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at, updated_at
`

const accountUpdateQ = `
UPDATE accounts
SET password_hash = $1,
	token_version = $2,
	token_family = $3,
	is_blocked = $4,
	is_verified = $5,
	updated_at = NOW()
WHERE id = $6
`

const devicesListQ = `
SELECT device_id, device_token, last_used_at
FROM devices
WHERE account_id = $1
ORDER BY position
`

const deviceUpsertQ = `
INSERT INTO devices (account_id, device_id, device_token, position, last_used_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (account_id, device_id) DO UPDATE
SET device_token = EXCLUDED.device_token,
	position = EXCLUDED.position,
	last_used_at = EXCLUDED.last_used_at
`

const deviceDeleteQ = `
DELETE FROM devices
WHERE account_id = $1 AND device_id = $2
`
