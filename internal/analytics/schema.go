package analytics

import "os"

// defaultSchemaDescription describes the restaurant-ratings dataset the
// assistant answers questions about. It is configuration, not code: the
// deployment keeps it in sync with the actual analytical schema via
// SCHEMA_DESCRIPTION_FILE.
const defaultSchemaDescription = `Tables:

consumers(Consumer_ID varchar primary, City varchar, State varchar, Country varchar,
  Latitude float, Longitude float, Smoker varchar, Drink_Level varchar,
  Transportation_Method varchar, Marital_Status varchar, Children varchar,
  Age int, Occupation varchar, Budget varchar)

consumer_preferences(Consumer_ID varchar references consumers, Preferred_Cuisine varchar)

ratings(Consumer_ID varchar references consumers, Restaurant_ID int references restaurants,
  Overall_Rating int, Food_Rating int, Service_Rating int)

restaurants(Restaurant_ID int primary, Name varchar, City varchar, State varchar,
  Country varchar, Zip_Code varchar, Latitude float, Longitude float,
  Alcohol_Service varchar, Smoking_Allowed varchar, Price varchar,
  Franchise varchar, Area varchar, Parking varchar)

restaurant_cuisines(Restaurant_ID int references restaurants, Cuisine varchar)`

// LoadSchemaDescription reads the schema text blob injected verbatim into
// every synthesis prompt. An empty path falls back to the built-in default.
func LoadSchemaDescription(path string) (string, error) {
	if path == "" {
		return defaultSchemaDescription, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
