package email

const subjectPasswordReset = "Reset your password"
