package session

import "account_gateway/internal/auth/repository"

// operation names an account operation and its legacy log messages.
type operation struct {
	name       string
	collection string
	failure    string
	empty      string
}

var (
	opRegister       = operation{name: "register", failure: "error during sign-up"}
	opLogin          = operation{name: "login", failure: "error during sign-in"}
	opLogout         = operation{name: "logout", failure: "error during sign-out"}
	opResetPassword  = operation{name: "requestPasswordReset", failure: "error while resetting the password"}
	opChangeEmail    = operation{name: "changeEmail", failure: "error while updating the email"}
	opChangePassword = operation{name: "changePassword", failure: "error while updating the password"}
	opDeleteAccount  = operation{name: "deleteAccount", failure: "error while deleting the account"}

	opFetchUser = operation{
		name:       "fetchUserRecord",
		collection: repository.UsersCollection,
		failure:    "error while fetching user data",
		empty:      "no user data found",
	}
	opFetchProfile = operation{
		name:       "fetchProfileRecord",
		collection: repository.ProfilesCollection,
		failure:    "error while fetching user profile data",
		empty:      "no user profile data found",
	}
	opFetchUserByID = operation{
		name:       "fetchUserRecordById",
		collection: repository.UsersCollection,
		failure:    "error while fetching user document",
		empty:      "no user document found",
	}
	opDeleteUserByID = operation{
		name:       "deleteUserRecordById",
		collection: repository.UsersCollection,
		failure:    "error while deleting user document",
	}
)
