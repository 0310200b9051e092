package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/libmanage/internal/countries"
)

type CountriesController struct {
	countries countries.Lister
}

func NewCountriesController(lister countries.Lister) *CountriesController {
	return &CountriesController{countries: lister}
}

// List returns the country picker options. Upstream failures yield an
// empty list rather than an error.
func (cc *CountriesController) List(c *gin.Context) {
	list := cc.countries.Countries(c.Request.Context())
	if list == nil {
		list = []countries.Country{}
	}
	c.JSON(http.StatusOK, gin.H{"countries": list, "count": len(list)})
}
