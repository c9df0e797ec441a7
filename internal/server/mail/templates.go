package mail

import "fmt"

const (
	SubjectVerifyEmail   = "Verify your email"
	SubjectResetPassword = "Reset your password"
	SubjectSetPassword   = "Set your password"
)

// BuildVerificationEmail renders the email-verification message body around
// the one-time code.
func BuildVerificationEmail(otp string) string {
	return fmt.Sprintf(`
    <h3>Email Verification</h3>
    <p>Please use the OTP below to verify your email address:</p>
    <div style="font-size: 24px; font-weight: bold; margin: 16px 0; color: #4CAF50;">
      %s
    </div>
    <p>This OTP will expire in 10 minutes. If you didn't request this, please ignore this email.</p>
  `, otp)
}

// BuildResetPasswordEmail renders the forgot-password message body around the
// one-time code.
func BuildResetPasswordEmail(otp string) string {
	return fmt.Sprintf(`
    <h3>Password Reset</h3>
    <p>Please use the OTP below to reset your password:</p>
    <div style="font-size: 24px; font-weight: bold; margin: 16px 0; color: #f44336;">
      %s
    </div>
    <p>This OTP will expire in 10 minutes. If you didn't request a password reset, please ignore this email.</p>
  `, otp)
}

// BuildSetPasswordEmail renders the set-password message body for accounts
// created through a federated provider that have no password yet.
func BuildSetPasswordEmail(otp string) string {
	return fmt.Sprintf(`
    <h3>Set Password</h3>
    <p>Please use the OTP below to set a password for your account:</p>
    <div style="font-size: 24px; font-weight: bold; margin: 16px 0; color: #2196F3;">
      %s
    </div>
    <p>This OTP will expire in 10 minutes. If you didn't request this, please ignore this email.</p>
  `, otp)
}
