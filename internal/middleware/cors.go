package middleware

import (
	"bufio"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

var corsMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}

// LoadCORS restricts origins to the lines of path when it exists, and allows
// any origin without credentials otherwise.
func LoadCORS(path string, logger zerolog.Logger) func(http.Handler) http.Handler {
	origins := loadCORSOrigins(path)

	if len(origins) > 0 {
		logger.Info().Int("origins", len(origins)).Str("file", path).Msg("Loaded CORS origins")
		return cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   corsMethods,
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
			MaxAge:           86400,
		})
	}

	logger.Warn().Str("file", path).Msg("No CORS origins file found, allowing all origins (credentials disabled)")
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   corsMethods,
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
}

func loadCORSOrigins(path string) []string {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var origins []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			origins = append(origins, line)
		}
	}
	return origins
}
