package config

const (
	// DefaultDatabasePath is the default path for the catalog database
	DefaultDatabasePath = "./libmanage.db"

	// DefaultUploadsRoot is the directory under which uploads/ is created
	DefaultUploadsRoot = "./wwwroot"

	// DefaultCountriesBaseURL points at the public REST Countries API
	DefaultCountriesBaseURL = "https://restcountries.com/v3.1"
)
